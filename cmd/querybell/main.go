package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"querybell/internal/app"
	"querybell/internal/engine"
	"querybell/internal/workload"
)

const usage = `usage: querybell [-config path] <command> [args]

commands:
  serve                      run the scheduler daemon (default)
  list                       list workload definitions
  add                        add a workload (-name -time -query -message -template-ref)
  edit <id>                  edit a workload (same flags; empty keeps current)
  pause <id>                 pause a workload (keeps its time)
  resume <id>                resume a paused workload
  delete <id>                delete a workload
  run <id>                   execute a workload now and print its report
  preview <sql>              run a capped preview of a SELECT query
  last-run                   print the most recent execution report
  test-mail <addr>           send a test message through the mail transport
`

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "querybell:", err)
		os.Exit(1)
	}

	if err := dispatch(a, cmd, args); err != nil {
		fmt.Fprintln(os.Stderr, "querybell:", err)
		os.Exit(1)
	}
}

func dispatch(a *app.App, cmd string, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		return serve(ctx, a)
	case "list":
		return list(ctx, a)
	case "add":
		return add(ctx, a, args)
	case "edit":
		return edit(ctx, a, args)
	case "pause":
		return setPaused(ctx, a, args, true)
	case "resume":
		return setPaused(ctx, a, args, false)
	case "delete":
		return remove(ctx, a, args)
	case "run":
		return runNow(ctx, a, args)
	case "preview":
		return preview(ctx, a, args)
	case "last-run":
		return lastRun(ctx, a)
	case "test-mail":
		return testMail(ctx, a, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q (try \"querybell help\")", cmd)
	}
}

func serve(ctx context.Context, a *app.App) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Stop(stopCtx)
}

func list(ctx context.Context, a *app.App) error {
	all, err := a.Workloads().All(ctx)
	if err != nil {
		return err
	}
	ids, err := a.Workloads().IDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no workloads defined")
		return nil
	}
	for _, id := range ids {
		w := all[id]
		state := "active"
		if w.Paused {
			state = "paused"
		}
		fmt.Printf("%s  %-7s %s  %q\n", w.ID, state, w.Time, w.Name)
		fmt.Printf("  query: %s\n", w.Query)
		if w.TemplateRef != "" {
			fmt.Printf("  template: %s\n", w.TemplateRef)
		}
	}
	return nil
}

type workloadFlags struct {
	name, timeOfDay, query, message, templateRef string
}

func parseWorkloadFlags(name string, args []string) (workloadFlags, []string, error) {
	var wf workloadFlags
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&wf.name, "name", "", "workload name (doubles as mail subject)")
	fs.StringVar(&wf.timeOfDay, "time", "", "daily trigger time, HH:MM (24h)")
	fs.StringVar(&wf.query, "query", "", "SELECT query to run")
	fs.StringVar(&wf.message, "message", "", "message template; empty uses the built-in default")
	fs.StringVar(&wf.templateRef, "template-ref", "", "external template registry id")
	if err := fs.Parse(args); err != nil {
		return wf, nil, err
	}
	return wf, fs.Args(), nil
}

func add(ctx context.Context, a *app.App, args []string) error {
	wf, _, err := parseWorkloadFlags("add", args)
	if err != nil {
		return err
	}
	if err := engine.Validate(wf.query); err != nil {
		return err
	}
	w, err := a.Workloads().Create(ctx, workload.Workload{
		Name:        wf.name,
		Time:        wf.timeOfDay,
		Query:       wf.query,
		Action:      workload.ActionSendEmail,
		Message:     wf.message,
		TemplateRef: wf.templateRef,
	})
	if err != nil {
		return err
	}
	fmt.Println("created", w.ID)
	return nil
}

func edit(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("edit: workload id required")
	}
	id := args[0]
	wf, _, err := parseWorkloadFlags("edit", args[1:])
	if err != nil {
		return err
	}

	w, err := a.Workloads().Get(ctx, id)
	if err != nil {
		return err
	}
	if wf.name != "" {
		w.Name = wf.name
	}
	if wf.timeOfDay != "" {
		w.Time = wf.timeOfDay
	}
	if wf.query != "" {
		if err := engine.Validate(wf.query); err != nil {
			return err
		}
		w.Query = wf.query
	}
	if wf.message != "" {
		w.Message = wf.message
	}
	if wf.templateRef != "" {
		w.TemplateRef = wf.templateRef
	}
	if err := a.Workloads().Update(ctx, w); err != nil {
		return err
	}
	fmt.Println("updated", w.ID)
	fmt.Println("the daemon picks the change up on its next schedule sweep")
	return nil
}

func setPaused(ctx context.Context, a *app.App, args []string, paused bool) error {
	if len(args) < 1 {
		return fmt.Errorf("workload id required")
	}
	w, err := a.Workloads().SetPaused(ctx, args[0], paused)
	if err != nil {
		return err
	}
	if paused {
		fmt.Printf("paused %s (time %s retained for resume)\n", w.ID, w.Time)
	} else {
		fmt.Printf("resumed %s at daily %s\n", w.ID, w.Time)
	}
	return nil
}

func remove(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("delete: workload id required")
	}
	if err := a.Workloads().Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("deleted", args[0])
	return nil
}

func runNow(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("run: workload id required")
	}
	report, err := a.RunNow(ctx, args[0])
	printReport(report)
	return err
}

func preview(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("preview: sql query required")
	}
	q := args[0]
	if err := engine.Validate(q); err != nil {
		return err
	}
	capped := engine.ToPreview(q, engine.PreviewCap)
	fmt.Println("executing:", capped)
	rows, err := a.Gate().Execute(ctx, capped)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no rows")
		return nil
	}
	for i, row := range rows {
		fmt.Printf("row #%d: %s\n", i+1, row.Pairs())
	}
	return nil
}

func lastRun(ctx context.Context, a *app.App) error {
	report, ok, err := a.Workloads().LastRun(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no runs recorded yet")
		return nil
	}
	printReport(report)
	return nil
}

func testMail(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("test-mail: recipient address required")
	}
	to := args[0]
	if !engine.IsEmail(to) {
		return fmt.Errorf("test-mail: %q is not a valid address", to)
	}
	err := a.Mailer().Send(ctx, to, "querybell test", "This is a querybell delivery test.", nil)
	if err != nil {
		return err
	}
	fmt.Println("test message sent to", to)
	return nil
}

func printReport(r *workload.Report) {
	if r == nil {
		return
	}
	fmt.Printf("workload:  %s\n", r.WorkloadID)
	fmt.Printf("timestamp: %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Printf("rows:      %d\n", r.Rows)
	fmt.Printf("sent:      %d\n", r.Sent)
	if r.Error != "" {
		fmt.Printf("error:     %s\n", r.Error)
	}
	if len(r.Debug) > 0 {
		fmt.Println("debug:")
		for _, line := range r.Debug {
			fmt.Println(" ", line)
		}
	}
}
