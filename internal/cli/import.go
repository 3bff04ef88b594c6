package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"live-session-service/internal/config"
	"live-session-service/internal/domain"
)

type presentationRow struct {
	bun.BaseModel `bun:"table:presentations"`

	ID   string              `bun:"id,pk"`
	Data domain.Presentation `bun:"data,type:jsonb"`
}

// NewImportPresentationCmd loads a presentation JSON file into Postgres.
func NewImportPresentationCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import-presentation <file>",
		Short: "Insert or replace a presentation from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), *configPath, args[0])
		},
	}
}

func runImport(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	p, err := readPresentation(file)
	if err != nil {
		return err
	}

	db, err := openBun(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	row := &presentationRow{ID: p.ID, Data: p}
	_, err = db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert presentation %s: %w", p.ID, err)
	}
	logger.Info("presentation imported", zap.String("presentation_id", p.ID), zap.Int("slides", len(p.Slides)))
	return nil
}

func readPresentation(file string) (domain.Presentation, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return domain.Presentation{}, err
	}
	var p domain.Presentation
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Presentation{}, fmt.Errorf("parse %s: %w", file, err)
	}
	if err := validatePresentation(p); err != nil {
		return domain.Presentation{}, fmt.Errorf("%s: %w", file, err)
	}
	return p, nil
}

func validatePresentation(p domain.Presentation) error {
	if p.ID == "" {
		return fmt.Errorf("%w: presentation id is required", domain.ErrInvalidRequest)
	}
	if len(p.Slides) == 0 {
		return fmt.Errorf("%w: presentation has no slides", domain.ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(p.Slides))
	for i, s := range p.Slides {
		if s.ID == "" {
			return fmt.Errorf("%w: slide %d has no id", domain.ErrInvalidRequest, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate slide id %q", domain.ErrInvalidRequest, s.ID)
		}
		seen[s.ID] = true
		if s.CorrectOptionID != "" && !s.HasOption(s.CorrectOptionID) {
			return fmt.Errorf("%w: slide %q marks unknown option %q correct", domain.ErrInvalidRequest, s.ID, s.CorrectOptionID)
		}
	}
	return nil
}
