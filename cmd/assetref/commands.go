package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/studiocms/service/internal/assetref"
)

func newRootCmd(resolver *assetref.Resolver) *cobra.Command {
	root := &cobra.Command{
		Use:          "assetref",
		Short:        "Inspect and rewrite media references",
		SilenceUsage: true,
	}
	root.AddCommand(
		newCanonicalizeCmd(),
		newNormalizeCmd(resolver),
		newDirectURLCmd(resolver),
	)
	return root
}

func newCanonicalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "canonicalize <ref>...",
		Short: "Print the file identifier for each reference",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, ref := range args {
				id, ok := assetref.Canonicalize(ref)
				if !ok {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "unrecognized reference: %s\n", ref)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d references not recognized", failed, len(args))
			}
			return nil
		},
	}
}

func newNormalizeCmd(resolver *assetref.Resolver) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Rewrite references read from stdin into proxy URLs",
		Long: "Reads one reference per line and prints its proxy URL. Lines that are not\n" +
			"recognized are printed unchanged and counted on stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			total, skipped := 0, 0
			for scanner.Scan() {
				line := scanner.Text()
				if strings.TrimSpace(line) == "" {
					fmt.Fprintln(out, line)
					continue
				}
				total++
				if proxy, ok := resolver.Normalize(line); ok {
					fmt.Fprintln(out, proxy)
					continue
				}
				skipped++
				fmt.Fprintln(out, line)
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "normalized %d of %d references, %d left unchanged\n", total-skipped, total, skipped)
			return nil
		},
	}
}

func newDirectURLCmd(resolver *assetref.Resolver) *cobra.Command {
	return &cobra.Command{
		Use:   "direct-url <id>...",
		Short: "Print upstream URLs with the read credential embedded",
		Long:  "Direct URLs carry the read-only credential. Use them for server-side jobs only.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, ref := range args {
				id, ok := assetref.Canonicalize(ref)
				if !ok {
					id = strings.TrimSpace(ref)
				}
				fmt.Fprintln(cmd.OutOrStdout(), resolver.DirectURL(id))
			}
			return nil
		},
	}
}
