package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/key"
)

var errNotListable = errors.New("backend cannot list keys")

// withSession opens the store and runs fn holding one backend session.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, e *env, sess backend.Session) error) error {
	e, err := open(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer e.Close(ctx)

	sess, err := e.store.Backend().Acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()
	return fn(ctx, e, sess)
}

func listKeys(ctx context.Context, sess backend.Session, prefix key.Key) ([]key.Key, error) {
	l, ok := sess.(backend.Lister)
	if !ok {
		return nil, errNotListable
	}
	return l.Keys(ctx, prefix)
}

// parseKey splits the joined form a user copies from `potency keys`.
func parseKey(s string) key.Key { return key.New(strings.Split(s, key.Delimiter)...) }

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys [segment...]",
		Short: "List stored keys, optionally under a namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, e *env, sess backend.Session) error {
				keys, err := listKeys(ctx, sess, key.New(args...))
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k.String())
				}
				e.log.Debug("listed", zap.Int("count", len(keys)))
				return nil
			})
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, e *env, sess backend.Session) error {
				k := parseKey(args[0])
				raw, ok, err := sess.Fetch(ctx, k)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no entry for %q", k.String())
				}
				fmt.Fprintln(cmd.OutOrStdout(), render(e, raw))
				return nil
			})
		},
	}
}

// render decodes with the store codec and prints JSON, or falls back to the
// raw bytes.
func render(e *env, raw []byte) string {
	var v any
	if err := e.store.Codec().Unmarshal(raw, &v); err == nil {
		if out, err := json.Marshal(v); err == nil {
			return string(out)
		}
	}
	return fmt.Sprintf("%q", raw)
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>...",
		Short: "Delete entries so they are recomputed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, e *env, sess backend.Session) error {
				for _, a := range args {
					if err := sess.Delete(ctx, parseKey(a)); err != nil {
						return err
					}
					e.log.Info("removed", zap.String("key", a))
				}
				return nil
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [segment...]",
		Short: "Count entries and their stored size",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, e *env, sess backend.Session) error {
				keys, err := listKeys(ctx, sess, key.New(args...))
				if err != nil {
					return err
				}
				var total uint64
				for _, k := range keys {
					raw, ok, err := sess.Fetch(ctx, k)
					if err != nil {
						return err
					}
					if ok {
						total += uint64(len(raw))
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "entries: %s\nsize:    %s\ncodec:   %s\n",
					humanize.Comma(int64(len(keys))), humanize.Bytes(total), e.store.Codec().Name())
				return nil
			})
		},
	}
}
