package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
)

// ── Comandos ──────────────────────────────────────────────────────────────────

func newRootCmd(open serviceOpener) *cobra.Command {
	var asJSON bool

	root := &cobra.Command{
		Use:           "reconcile",
		Short:         "Recalcula proyecciones de stock desde el libro de movimientos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "salida en JSON")

	var workers int
	tenantCmd := &cobra.Command{
		Use:   "tenant <tenant_id>",
		Short: "Recalcula todas las proyecciones de un tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := svc.ReconcileTenant(cmd.Context(), args[0], workers)
			if err != nil {
				return err
			}
			if err := writeReport(cmd.OutOrStdout(), report, asJSON); err != nil {
				return err
			}
			if len(report.Drifts) > 0 {
				return errDrift
			}
			return nil
		},
	}
	tenantCmd.Flags().IntVar(&workers, "workers", 4, "recálculos en paralelo")

	productCmd := &cobra.Command{
		Use:   "product <tenant_id> <product_id>",
		Short: "Recalcula la proyección de un producto",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			r, err := svc.Recompute(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			report := &inventory.TenantReport{TenantID: r.TenantID, Checked: 1}
			if r.Drifted() {
				report.Drifts = append(report.Drifts, *r)
			}
			if err := writeReport(cmd.OutOrStdout(), report, asJSON); err != nil {
				return err
			}
			if r.Drifted() {
				return errDrift
			}
			return nil
		},
	}

	root.AddCommand(tenantCmd, productCmd)
	return root
}

// ── Salida ────────────────────────────────────────────────────────────────────

type driftJSON struct {
	ProductID  string `json:"product_id"`
	Cached     string `json:"cached"`
	Recomputed string `json:"recomputed"`
	Difference string `json:"difference"`
}

type reportJSON struct {
	TenantID string      `json:"tenant_id"`
	Checked  int         `json:"checked"`
	Drifts   []driftJSON `json:"drifts"`
}

func writeReport(w io.Writer, report *inventory.TenantReport, asJSON bool) error {
	if asJSON {
		out := reportJSON{TenantID: report.TenantID, Checked: report.Checked, Drifts: []driftJSON{}}
		for _, d := range report.Drifts {
			out.Drifts = append(out.Drifts, driftJSON{
				ProductID:  d.ProductID,
				Cached:     d.Previous.String(),
				Recomputed: d.Quantity.String(),
				Difference: d.Quantity.Sub(d.Previous).String(),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "tenant %s: %d productos revisados, %d con discrepancia\n", report.TenantID, report.Checked, len(report.Drifts))
	for _, d := range report.Drifts {
		fmt.Fprintf(w, "  %s: cacheado %s -> libro %s (%s)\n",
			d.ProductID, d.Previous, d.Quantity, d.Quantity.Sub(d.Previous))
	}
	return nil
}
