package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cache"
	"github.com/shaiso/Conveyor/internal/compiler"
)

// NewCacheCmd создаёт группу команд для кэша. Хранилище не требуется.
func NewCacheCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache utilities",
	}
	cmd.AddCommand(newCacheFingerprintCmd(outputFn))
	return cmd
}

func newCacheFingerprintCmd(outputFn func() *Output) *cobra.Command {
	var specFile, namespace, salt string

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Compute the cache fingerprint of a spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := uuid.Parse(namespace)
			if err != nil {
				return fmt.Errorf("invalid namespace %q: %w", namespace, err)
			}

			raw, err := os.ReadFile(specFile)
			if err != nil {
				return fmt.Errorf("read spec: %w", err)
			}

			comp, err := compiler.New()
			if err != nil {
				return err
			}
			spec, err := comp.Compile(cmd.Context(), string(raw))
			if err != nil {
				return err
			}

			op := &spec.Operation
			if salt == "" {
				salt = op.Component
			}
			fp, ok := cache.ComputeFingerprint(cache.ConfigFromSpec(op.Cache), cache.SectionsFromSpec(op), ns, salt)

			out := outputFn()
			if !ok {
				out.Error("cache disabled or spec has nothing to fingerprint")
				fp = ""
			}
			out.Print([]string{"FINGERPRINT", "ENABLED"},
				[][]string{{orDash(fp), fmt.Sprint(ok)}},
				map[string]any{"fingerprint": fp, "enabled": ok})
			return nil
		},
	}

	cmd.Flags().StringVarP(&specFile, "spec", "f", "", "Spec file (YAML or JSON)")
	cmd.Flags().StringVar(&namespace, "namespace", "", "Namespace UUID (project ID)")
	cmd.Flags().StringVar(&salt, "salt", "", "Component salt (defaults to the spec component)")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("namespace")

	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
