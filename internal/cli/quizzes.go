package cli

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const purgeConcurrency = 8

// NewQuizzesCmd groups the admin commands that inspect stored quizzes.
func NewQuizzesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quizzes",
		Short: "Inspect or purge stored quizzes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every stored quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()
			return listQuizzes(cmd, b)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every stored quiz with its responses and images",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()
			return purgeQuizzes(cmd, b)
		},
	})
	return cmd
}

func listQuizzes(cmd *cobra.Command, b *backend) error {
	quizzes, err := b.quizzes.ListAll(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, q := range quizzes {
		fmt.Fprintf(out, "%s  %q  owner=%s  questions=%d  responses=%d  created=%s\n",
			q.ID, q.Name, q.OwnerID, len(q.Questions), len(q.Responses), q.CreatedAt.Format("2006-01-02 15:04"))
		for i, qq := range q.Questions {
			if i == 3 {
				fmt.Fprintf(out, "    ... %d more\n", len(q.Questions)-3)
				break
			}
			fmt.Fprintf(out, "    %d. %s\n", i+1, qq.Text)
		}
	}
	writeCount(out, len(quizzes), "quiz", "quizzes")
	return nil
}

func purgeQuizzes(cmd *cobra.Command, b *backend) error {
	ctx := cmd.Context()
	quizzes, err := b.quizzes.ListAll(ctx)
	if err != nil {
		return err
	}

	var deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(purgeConcurrency)
	for _, q := range quizzes {
		q := q
		g.Go(func() error {
			if err := b.quizSvc.Delete(gctx, q.OwnerID, q.ID); err != nil {
				return fmt.Errorf("delete %s: %w", q.ID, err)
			}
			deleted.Add(1)
			return nil
		})
	}
	err = g.Wait()
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d of %d quizzes\n", deleted.Load(), len(quizzes))
	return err
}

func writeCount(w io.Writer, n int, singular, plural string) {
	noun := plural
	if n == 1 {
		noun = singular
	}
	fmt.Fprintf(w, "%d %s\n", n, noun)
}
