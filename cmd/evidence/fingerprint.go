package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/evidence/fingerprint"
)

func newFingerprintCmd() *cobra.Command {
	var (
		headers []string
		hash    string
	)
	cmd := &cobra.Command{
		Use:   "fingerprint <url>",
		Short: "Print the timestamped file name prefix the recorder would use for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHeaders(headers)
			if err != nil {
				return err
			}
			newHash, err := fingerprint.HashByName(hash)
			if err != nil {
				return err
			}
			name, err := fingerprint.New(fingerprint.WithHash(newHash)).Filename(args[0], h)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "header included in the hash, as Name=value (repeatable)")
	cmd.Flags().StringVar(&hash, "hash", "sha256", "hash function: sha256, blake2b")
	return cmd
}

// parseHeaders turns Name=value pairs into a map. No pairs gives nil, which
// hashes the URL alone.
func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("header %q: want Name=value", p)
		}
		out[k] = v
	}
	return out, nil
}
