package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"chronotask/internal/config"
	"chronotask/internal/domain"
	"chronotask/internal/services"
)

// Printer renders command results as a table, JSON or YAML.
type Printer struct {
	out     io.Writer
	display config.DisplayConfig
}

// NewPrinter creates a printer for the given display settings.
func NewPrinter(out io.Writer, display config.DisplayConfig) *Printer {
	return &Printer{out: out, display: display}
}

// taskView is the serialized form of a task with its displayed time.
type taskView struct {
	domain.Task    `yaml:",inline"`
	State          string `json:"state" yaml:"state"`
	ElapsedSeconds int64  `json:"elapsed_seconds" yaml:"elapsed_seconds"`
}

type dayView struct {
	Day   domain.Day `json:"day" yaml:"day"`
	Tasks []taskView `json:"tasks" yaml:"tasks"`
}

// ReportView is everything the report command prints.
type ReportView struct {
	services.Report `yaml:",inline"`
	Progress        *services.Progress `json:"progress,omitempty" yaml:"progress,omitempty"`
	IncompleteDays  []domain.Day       `json:"incomplete_days" yaml:"incomplete_days"`
}

// encode writes v in a structured format and reports whether it did.
func (p *Printer) encode(v interface{}) (bool, error) {
	switch p.display.DefaultFormat {
	case "json":
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

// PrintDays prints tasks grouped by day, most recent day first.
func (p *Printer) PrintDays(grouped map[domain.Day][]domain.Task, now time.Time) error {
	days := domain.SortedDays(grouped)
	views := make([]dayView, 0, len(days))
	for i := len(days) - 1; i >= 0; i-- {
		day := days[i]
		view := dayView{Day: day}
		for _, t := range grouped[day] {
			view.Tasks = append(view.Tasks, newTaskView(t, now))
		}
		views = append(views, view)
	}

	if ok, err := p.encode(views); ok {
		return err
	}

	if len(views) == 0 {
		fmt.Fprintln(p.out, "No tasks found")
		return nil
	}
	for i, view := range views {
		if i > 0 {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintf(p.out, "%s\n", view.Day)
		w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATE\tTIME")
		for _, t := range view.Tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Key(), t.Name, p.stateLabel(t.Task), domain.FormatClock(time.Duration(t.ElapsedSeconds)*time.Second))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// PrintTask prints a single task.
func (p *Printer) PrintTask(t domain.Task, now time.Time) error {
	view := newTaskView(t, now)
	if ok, err := p.encode(view); ok {
		return err
	}
	_, err := fmt.Fprintf(p.out, "%s %s (%s, %s)\n", view.Key(), view.Name, p.stateLabel(t), domain.FormatClock(time.Duration(view.ElapsedSeconds)*time.Second))
	return err
}

// PrintReport prints the reporting views.
func (p *Printer) PrintReport(view ReportView) error {
	if ok, err := p.encode(view); ok {
		return err
	}

	r := view.Report
	fmt.Fprintf(p.out, "Report %s to %s\n\n", r.Range.From, r.Range.End())

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tHOURS\tTASKS")
	counts := make(map[domain.Day]int, len(r.TaskCounts))
	for _, c := range r.TaskCounts {
		counts[c.Day] = c.Count
	}
	for _, total := range r.DailyTotals {
		fmt.Fprintf(w, "%s\t%.2f\t%d\n", total.Day, total.Hours, counts[total.Day])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(p.out, "\nTime per task on %s\n", r.Day)
	if len(r.TimePerTask) == 0 {
		fmt.Fprintln(p.out, "No time logged")
	} else {
		w = tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tHOURS\tSTATUS")
		for _, tt := range r.TimePerTask {
			status := "done"
			if tt.Incomplete {
				status = "incomplete"
			}
			fmt.Fprintf(w, "%s\t%.2f\t%s\n", tt.Name, tt.Hours, status)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if view.Progress != nil {
		fmt.Fprintf(p.out, "\nToday: %.2fh of %.2fh (%.0f%%)\n", view.Progress.CurrentHours, view.Progress.TargetHours, view.Progress.Percent)
	}
	if len(view.IncompleteDays) > 0 {
		fmt.Fprintf(p.out, "\nDays with open tasks:")
		for _, d := range view.IncompleteDays {
			fmt.Fprintf(p.out, " %s", d)
		}
		fmt.Fprintln(p.out)
	}
	return nil
}

func (p *Printer) stateLabel(t domain.Task) string {
	switch t.State() {
	case domain.StateRunning:
		return p.display.RunningStatus
	case domain.StatePostponed:
		return "postponed to " + t.PostponedTo.String()
	}
	return t.State().String()
}

func newTaskView(t domain.Task, now time.Time) taskView {
	return taskView{
		Task:           t,
		State:          t.State().String(),
		ElapsedSeconds: domain.ElapsedSeconds(t, now),
	}
}
