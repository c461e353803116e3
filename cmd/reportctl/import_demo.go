package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/domain"
)

var demoIncidents = []struct {
	title        string
	body         string
	improvements string
}{
	{"本番DBへの誤接続", "検証用のつもりで本番データベースに接続し、更新クエリを実行しかけた。", "接続先をプロンプトに表示し、本番は読み取り専用ユーザーを既定にする。"},
	{"資料の誤送付", "会議資料を宛先の似た別部署のメーリングリストに送ってしまった。", "送信前に宛先を読み上げて確認する。"},
	{"リリース手順の抜け", "リリース時に設定ファイルの更新を忘れ、機能が一部動かなかった。", "手順書をチェックリスト化し、ダブルチェックを必須にする。"},
	{"期限の認識違い", "顧客との納期の認識が一週間ずれていた。", "合意内容を議事録で共有し、相手の確認を取る。"},
	{"監視アラートの見落とし", "深夜のディスク使用率アラートに誰も気づかなかった。", "アラートの通知先をオンコール当番に限定し、エスカレーションを設定する。"},
}

func newImportDemoCmd(opts *rootOptions) *cobra.Command {
	var (
		count  int
		userID string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "import-demo",
		Short: "Seed demo reports (Postgres, or JSON lines on stdout without a database)",
		RunE: func(cmd *cobra.Command, args []string) error {
			reports := demoReports(category.Default(), count, userID, days, time.Now().UTC())

			if opts.cfg.DatabaseURL == "" {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				for _, report := range reports {
					if err := encoder.Encode(report); err != nil {
						return err
					}
				}
				return nil
			}

			repo, err := opts.openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()
			for i := range reports {
				if err := repo.CreateReport(cmd.Context(), &reports[i]); err != nil {
					return fmt.Errorf("insert demo report %d: %w", i, err)
				}
			}
			opts.logger.Info("demo reports imported", zap.Int("count", len(reports)))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d reports\n", len(reports))
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 20, "number of reports to create")
	cmd.Flags().StringVar(&userID, "user", "demo-user", "author of the demo reports")
	cmd.Flags().IntVar(&days, "days", 30, "spread creation times over this many past days")
	return cmd
}

// demoReports spreads count reports evenly over the last days, cycling
// through the taxonomy so every chart has data.
func demoReports(taxonomy *category.Taxonomy, count int, userID string, days int, now time.Time) []domain.Report {
	if count < 0 {
		count = 0
	}
	if days <= 0 {
		days = 1
	}
	categories := taxonomy.All()
	span := time.Duration(days) * 24 * time.Hour

	reports := make([]domain.Report, 0, count)
	for i := 0; i < count; i++ {
		incident := demoIncidents[i%len(demoIncidents)]
		code := categories[i%len(categories)].Code
		offset := time.Duration(0)
		if count > 1 {
			offset = span * time.Duration(i) / time.Duration(count-1)
		}
		reports = append(reports, domain.Report{
			ReportID:     uuid.NewString(),
			UserID:       userID,
			Title:        incident.title,
			Body:         incident.body,
			Summary:      incident.title,
			Tags:         []string{"demo"},
			Category:     code,
			CreatedAt:    now.Add(-offset),
			Improvements: incident.improvements,
		})
	}
	return reports
}
