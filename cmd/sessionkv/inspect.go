package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/internal/kv"
	"github.com/amoylab/sessionkv/internal/session"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type sessionView struct {
	ID      string         `json:"id"`
	Flags   string         `json:"flags"`
	Timeout int            `json:"timeout"`
	Locked  bool           `json:"locked"`
	LockID  session.LockID `json:"lock_id,omitempty"`
	LockAge string         `json:"lock_age,omitempty"`
	Items   *session.Items `json:"items"`
}

func inspect(ctx context.Context, out io.Writer, path, id string) error {
	cfg, cfgPath, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", cfgPath, err)
	}

	client, err := kv.NewClient(zap.NewNop(), &cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize kv store: %w", err)
	}
	defer client.Close()

	opts, err := session.OptionsFromConfig(&cfg.Session)
	if err != nil {
		return err
	}
	engine := session.NewEngine(client, opts, zap.NewNop(), nil)

	rec, err := engine.Load(ctx, id, false)
	if errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("session %q does not exist", id)
	}
	if err != nil {
		return err
	}

	view := sessionView{
		ID:      rec.ID,
		Flags:   rec.Flags.String(),
		Timeout: rec.Timeout,
		Locked:  rec.Locked(),
		LockID:  rec.LockID,
		Items:   rec.Items,
	}
	if rec.Locked() {
		view.LockAge = rec.LockAge(time.Now()).Truncate(time.Millisecond).String()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
