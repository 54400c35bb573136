package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dalemusser/stratatrack/internal/app/system/normalize"
	"github.com/dalemusser/stratatrack/internal/app/system/tracking"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/spf13/cobra"
)

// MetricSummary is one row of `trackctl list`.
type MetricSummary struct {
	Key    string            `json:"key" yaml:"key"`
	Name   string            `json:"name" yaml:"name"`
	Color  string            `json:"color" yaml:"color"`
	Points int               `json:"points" yaml:"points"`
	Latest *models.DataPoint `json:"latest,omitempty" yaml:"latest,omitempty"`
}

// PointList is the output of `trackctl list KEY`.
type PointList struct {
	Key  string             `json:"key" yaml:"key"`
	Data []models.DataPoint `json:"data" yaml:"data"`
}

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [key]",
		Short: "List metrics, or one metric's data points newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 1 {
				key := normalize.MetricKey(args[0])
				data, err := s.store.GetDataDesc(key)
				if err != nil {
					return opError(err)
				}
				out := PointList{Key: key, Data: data}
				return render(cmd.OutOrStdout(), opts.Format, out, func(w io.Writer) error {
					for _, p := range data {
						fmt.Fprintf(w, "%s\t%s\n", p.Date, models.FormatValue(p.Value))
					}
					return nil
				})
			}

			c := s.store.Collection()
			rows := summarize(c)
			return render(cmd.OutOrStdout(), opts.Format, rows, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tNAME\tCOLOR\tPOINTS\tLATEST")
				for _, r := range rows {
					latest := "-"
					if r.Latest != nil {
						latest = r.Latest.Date + " " + models.FormatValue(r.Latest.Value)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.Key, r.Name, r.Color, r.Points, latest)
				}
				return tw.Flush()
			})
		},
	}
}

func summarize(c models.Collection) []MetricSummary {
	rows := make([]MetricSummary, 0, len(c))
	for _, k := range c.Keys() {
		m := c[k]
		r := MetricSummary{Key: k, Name: m.Name, Color: m.Color, Points: len(m.Data)}
		if n := len(m.Data); n > 0 {
			last := m.Data[n-1]
			r.Latest = &last
		}
		rows = append(rows, r)
	}
	return rows
}

func newAddCommand(opts *RootOptions) *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "add <key>",
		Short: "Create a metric, or reset an existing one to no data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := normalize.MetricKey(args[0])
			c, ok := normalize.Color(color)
			if !ok {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid color %q", color))
			}

			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.AddValue(key); err != nil {
				return opError(err)
			}
			if name != "" || c != "" {
				if err := s.store.SaveMetric(key, normalize.Name(name), c); err != nil {
					return opError(err)
				}
			}
			if err := s.saved(); err != nil {
				return err
			}
			m, err := s.store.Metric(key)
			if err != nil {
				return opError(err)
			}
			return render(cmd.OutOrStdout(), opts.Format, m, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "added %s\n", key)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&color, "color", "", "hex color such as #4caf50")
	return cmd
}

func newPointCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "point <key> <date> <value>",
		Short: "Record a value for a date, replacing any value already on that date",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := normalize.MetricKey(args[0])
			date, ok := normalize.Date(args[1])
			if !ok {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid date %q: want YYYY-MM-DD", args[1]))
			}
			value := parseValue(args[2])

			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.AddDataPoint(key, date, value); err != nil {
				return opError(err)
			}
			if err := s.saved(); err != nil {
				return err
			}
			p := models.DataPoint{Date: date, Value: value}
			return render(cmd.OutOrStdout(), opts.Format, p, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s %s = %s\n", key, date, models.FormatValue(value))
				return err
			})
		},
	}
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key> [date]",
		Short: "Delete a metric, or only its data point on a date",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := normalize.MetricKey(args[0])

			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			what := key
			if len(args) == 2 {
				date := strings.TrimSpace(args[1])
				err = s.store.DeleteValueData(key, date)
				what = key + " " + date
			} else {
				err = s.store.DeleteValue(key)
			}
			if err != nil {
				return opError(err)
			}
			if err := s.saved(); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Format, map[string]string{"deleted": what}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "deleted %s\n", what)
				return err
			})
		},
	}
}

// parseValue stores numeric input as a number and anything else as text.
func parseValue(s string) any {
	t := strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return f
	}
	return t
}

func opError(err error) error {
	if errors.Is(err, tracking.ErrNotFound) {
		return WrapExitError(ExitFailure, "no such metric", err)
	}
	return WrapExitError(ExitFailure, "operation failed", err)
}
