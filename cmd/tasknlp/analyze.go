package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tasknlp/internal/server"
)

func newAnalyzeCmd() *cobra.Command {
	var op string
	c := &cobra.Command{
		Use:     "analyze [text]",
		Short:   "Run a model operation on text from the arguments or stdin",
		Example: `tasknlp analyze "Réunion avec Jean Dupont demain à Paris"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(raw)
			}
			svc, err := loadServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			return runAnalyze(cmd.Context(), svc.Orchestrator, op, text, cmd.OutOrStdout())
		},
	}
	c.Flags().StringVar(&op, "op", "analyze", "operation: analyze, type or entities")
	return c
}

func runAnalyze(ctx context.Context, a server.Analyzer, op, text string, out io.Writer) error {
	var (
		res interface{}
		err error
	)
	switch op {
	case "analyze":
		res, err = a.Analyze(ctx, text)
	case "type":
		res, err = a.PredictType(ctx, text)
	case "entities":
		entities, extractErr := a.ExtractEntities(ctx, text)
		res, err = server.EntitiesResponse{Entities: entities}, extractErr
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
