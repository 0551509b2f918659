package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

type (
	// TimeSlice is one dispatch of a process onto a core, in milliseconds
	// since the scheduler launched.
	TimeSlice struct {
		PID   int
		Core  int
		Start int64
		Stop  int64
	}
	// Timing is the lifecycle of a finished process, in milliseconds since
	// the scheduler launched.
	Timing struct {
		PID          int
		Name         string
		Instructions int
		Dispatches   int
		Arrival      int64
		Start        int64
		Exit         int64
	}
)

/* Title outputs a banner given:
an output writer
the title text */
func Title(w io.Writer, title string) {
	_, _ = fmt.Fprintln(w, strings.Repeat("-", len(title)*2))
	_, _ = fmt.Fprintln(w, strings.Repeat(" ", len(title)/2), title)
	_, _ = fmt.Fprintln(w, strings.Repeat("-", len(title)*2))
}

/* Gantt outputs one chart row per core given:
an output writer
the recorded slices, in dispatch order */
func Gantt(w io.Writer, slices []TimeSlice) {
	_, _ = fmt.Fprintln(w, "Gantt schedule")
	if len(slices) == 0 {
		_, _ = fmt.Fprintf(w, "(no dispatches)\n\n")
		return
	}

	cores := 0
	for i := range slices {
		if slices[i].Core+1 > cores {
			cores = slices[i].Core + 1
		}
	}

	for core := 0; core < cores; core++ {
		var row []TimeSlice
		for i := range slices {
			if slices[i].Core == core {
				row = append(row, slices[i])
			}
		}
		if len(row) == 0 {
			continue
		}

		_, _ = fmt.Fprintf(w, "core %d |", core)
		for i := range row {
			pid := fmt.Sprint(row[i].PID)
			padding := strings.Repeat(" ", max((8-len(pid))/2, 0))
			_, _ = fmt.Fprint(w, padding, pid, padding, "|")
		}
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprint(w, "        ")
		for i := range row {
			_, _ = fmt.Fprint(w, fmt.Sprint(row[i].Start), "\t")
			if len(row)-1 == i {
				_, _ = fmt.Fprint(w, fmt.Sprint(row[i].Stop))
			}
		}
		_, _ = fmt.Fprintln(w)
	}
	_, _ = fmt.Fprintln(w)
}

/* Schedule outputs the timing table of finished processes with average wait,
average turnaround and throughput in processes per second. Wait is the time
between arrival and exit not spent on a core. */
func Schedule(w io.Writer, timings []Timing, busy map[int]int64) {
	var (
		totalWait       float64
		totalTurnaround float64
		firstArrival    int64
		lastCompletion  int64
		rows            = make([][]string, 0, len(timings))
	)

	for i, t := range timings {
		turnaround := t.Exit - t.Arrival
		wait := max(turnaround-busy[t.PID], 0)
		totalWait += float64(wait)
		totalTurnaround += float64(turnaround)
		if i == 0 || t.Arrival < firstArrival {
			firstArrival = t.Arrival
		}
		lastCompletion = max(lastCompletion, t.Exit)

		rows = append(rows, []string{
			fmt.Sprint(t.PID),
			t.Name,
			fmt.Sprint(t.Instructions),
			fmt.Sprint(t.Dispatches),
			fmt.Sprint(t.Arrival),
			fmt.Sprint(t.Start),
			fmt.Sprint(wait),
			fmt.Sprint(turnaround),
			fmt.Sprint(t.Exit),
		})
	}

	var aveWait, aveTurnaround, throughput float64
	if count := float64(len(timings)); count > 0 {
		aveWait = totalWait / count
		aveTurnaround = totalTurnaround / count
		if span := lastCompletion - firstArrival; span > 0 {
			throughput = count / (float64(span) / 1000)
		}
	}

	_, _ = fmt.Fprintln(w, "Schedule table (ms)")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Instructions", "Dispatches", "Arrival", "Start", "Wait", "Turnaround", "Exit"})
	table.AppendBulk(rows)
	table.SetFooter([]string{"", "", "", "", "", "",
		fmt.Sprintf("Average\n%.2f", aveWait),
		fmt.Sprintf("Average\n%.2f", aveTurnaround),
		fmt.Sprintf("Throughput\n%.2f/s", throughput)})
	table.Render()
}

// Table renders a plain bordered table.
func Table(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}

// KeyValues renders label/value pairs as a borderless two-column table.
func KeyValues(w io.Writer, pairs [][2]string) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnSeparator(":")
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, p := range pairs {
		table.Append([]string{p[0], p[1]})
	}
	table.Render()
}
