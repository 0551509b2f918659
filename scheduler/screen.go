package scheduler

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jar0582/CSCE4600/csopesy/process"
	"github.com/jar0582/CSCE4600/csopesy/report"
)

const timeLayout = "01/02/2006 03:04:05PM"

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

// DisplayScreenList renders core utilization and the running, waiting and
// finished processes.
func (s *Scheduler) DisplayScreenList() string {
	var b strings.Builder
	s.writeScreenList(&b)
	return b.String()
}

func (s *Scheduler) writeScreenList(w io.Writer) {
	onCores := s.OnCores()
	used := 0
	for _, p := range onCores {
		if p != nil {
			used++
		}
	}
	util := 0
	if len(onCores) > 0 {
		util = used * 100 / len(onCores)
	}

	report.KeyValues(w, [][2]string{
		{"CPU utilization", fmt.Sprintf("%d%%", util)},
		{"Cores used", fmt.Sprint(used)},
		{"Cores available", fmt.Sprint(len(onCores) - used)},
	})

	_, _ = fmt.Fprintln(w, "Running processes:")
	var running [][]string
	for id, p := range onCores {
		if p == nil {
			continue
		}
		running = append(running, []string{p.Name(), fmt.Sprint(id), p.Counter(), stamp(p.StartTime())})
	}
	report.Table(w, []string{"Name", "Core", "Progress", "Start time"}, running)

	// processes stuck on memory stay visible here
	var ready [][]string
	for _, p := range s.ReadyQueue() {
		mem := "waiting for memory"
		if p.IsAllocated() {
			mem = "allocated"
		}
		ready = append(ready, []string{p.Name(), p.State().String(), mem, p.Counter()})
	}
	if len(ready) > 0 {
		_, _ = fmt.Fprintln(w, "Ready processes:")
		report.Table(w, []string{"Name", "State", "Memory", "Progress"}, ready)
	}

	_, _ = fmt.Fprintln(w, "Finished processes:")
	var finished [][]string
	for _, p := range s.Finished() {
		finished = append(finished, []string{p.Name(), "Finished", p.Counter(), stamp(p.EndTime())})
	}
	report.Table(w, []string{"Name", "State", "Progress", "End time"}, finished)
}

/* WriteReport outputs the full utilization report given:
an output writer
It holds the screen list, the Gantt chart of every dispatch and the timing
table of finished processes. */
func (s *Scheduler) WriteReport(w io.Writer) {
	report.Title(w, s.policy.Name())
	s.writeScreenList(w)
	_, _ = fmt.Fprintln(w)

	slices := s.Slices()
	report.Gantt(w, slices)

	busy := make(map[int]int64)
	for _, sl := range slices {
		busy[sl.PID] += sl.Stop - sl.Start
	}
	finished := s.Finished()
	timings := make([]report.Timing, 0, len(finished))
	for _, p := range finished {
		timings = append(timings, s.timing(p))
	}
	report.Schedule(w, timings, busy)
}

func (s *Scheduler) timing(p *process.Process) report.Timing {
	since := func(t time.Time) int64 {
		if t.IsZero() {
			return 0
		}
		return max(t.Sub(s.launchedAt).Milliseconds(), 0)
	}
	return report.Timing{
		PID:          p.PID(),
		Name:         p.Name(),
		Instructions: p.InstructionCount(),
		Dispatches:   p.Dispatches(),
		Arrival:      since(p.ArrivalTime()),
		Start:        since(p.StartTime()),
		Exit:         since(p.EndTime()),
	}
}
