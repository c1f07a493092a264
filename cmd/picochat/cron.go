package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sipeed/picochat/pkg/cron"
)

func cronCmd() {
	if len(os.Args) < 3 {
		cronHelp()
		return
	}

	subcommand := os.Args[2]

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}
	storePath := cfg.CronStorePath()

	switch subcommand {
	case "list":
		cronListCmd(storePath)
	case "add":
		cronAddCmd(storePath, os.Args[3:])
	case "remove":
		if len(os.Args) < 4 {
			fmt.Println("Usage: picochat cron remove <job_id>")
			return
		}
		cronRemoveCmd(storePath, os.Args[3])
	case "enable":
		cronEnableCmd(storePath, false)
	case "disable":
		cronEnableCmd(storePath, true)
	default:
		fmt.Printf("Unknown cron command: %s\n", subcommand)
		cronHelp()
	}
}

func cronHelp() {
	fmt.Println("\nCron commands:")
	fmt.Println("  list              List all scheduled jobs")
	fmt.Println("  add               Add a new scheduled job")
	fmt.Println("  remove <id>       Remove a job by ID")
	fmt.Println("  enable <id>       Enable a job")
	fmt.Println("  disable <id>      Disable a job")
	fmt.Println()
	fmt.Println("Add options:")
	fmt.Println("  -n, --name        Job name")
	fmt.Println("  -k, --kind        announce | prompt | sweep_sessions (default announce)")
	fmt.Println("  -m, --message     Text to send, or prompt to complete")
	fmt.Println("  -e, --every       Run every N seconds")
	fmt.Println("  -c, --cron        Cron expression (e.g. '0 9 * * *')")
	fmt.Println("  -a, --at          Run once at RFC3339 time, or in N seconds")
	fmt.Println("  --tz              Time zone for --cron")
	fmt.Println("  --channel         Channel for delivery (wechat, onebot, ...)")
	fmt.Println("  --to              Chat ID for delivery")
	fmt.Println("  --idle            Idle minutes for sweep_sessions")
}

func cronListCmd(storePath string) {
	cs := cron.NewCronService(storePath, nil)
	jobs := cs.ListJobs(true)

	if len(jobs) == 0 {
		fmt.Println("No scheduled jobs.")
		return
	}

	fmt.Println("\nScheduled Jobs:")
	fmt.Println("----------------")
	for _, job := range jobs {
		nextRun := "-"
		if job.State.NextRunAtMS != nil {
			nextRun = time.UnixMilli(*job.State.NextRunAtMS).Format("2006-01-02 15:04")
		}

		status := "enabled"
		if !job.Enabled {
			status = "disabled"
		}

		fmt.Printf("  %s (%s)\n", job.Name, job.ID)
		fmt.Printf("    Schedule: %s\n", describeSchedule(job.Schedule))
		fmt.Printf("    Payload: %s\n", describePayload(job.Payload))
		fmt.Printf("    Status: %s\n", status)
		fmt.Printf("    Next run: %s\n", nextRun)
		if job.State.LastStatus != "" {
			fmt.Printf("    Last run: %s %s\n", job.State.LastStatus, job.State.LastError)
		}
	}
}

func describeSchedule(s cron.CronSchedule) string {
	switch s.Kind {
	case cron.ScheduleEvery:
		if s.EveryMS != nil {
			return fmt.Sprintf("every %ds", *s.EveryMS/1000)
		}
	case cron.ScheduleCron:
		if s.TZ != "" {
			return s.Expr + " (" + s.TZ + ")"
		}
		return s.Expr
	case cron.ScheduleAt:
		if s.AtMS != nil {
			return "once at " + time.UnixMilli(*s.AtMS).Format("2006-01-02 15:04:05")
		}
	}
	return s.Kind
}

func describePayload(p cron.CronPayload) string {
	if p.Kind == cron.PayloadSweepSessions {
		return fmt.Sprintf("%s idle>%dm", p.Kind, p.IdleMinutes)
	}
	return fmt.Sprintf("%s -> %s:%s %q", p.Kind, p.Channel, p.To, p.Message)
}

type cronAddRequest struct {
	Name     string
	Schedule cron.CronSchedule
	Payload  cron.CronPayload
}

func parseCronAddArgs(args []string, now time.Time) (*cronAddRequest, error) {
	req := &cronAddRequest{Payload: cron.CronPayload{Kind: cron.PayloadAnnounce}}

	var everySec, atValue, cronExpr, tz string
	next := func(i *int) string {
		if *i+1 < len(args) {
			*i++
			return args[*i]
		}
		return ""
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-n", "--name":
			req.Name = next(&i)
		case "-k", "--kind":
			req.Payload.Kind = next(&i)
		case "-m", "--message":
			req.Payload.Message = next(&i)
		case "-e", "--every":
			everySec = next(&i)
		case "-c", "--cron":
			cronExpr = next(&i)
		case "-a", "--at":
			atValue = next(&i)
		case "--tz":
			tz = next(&i)
		case "--channel":
			req.Payload.Channel = next(&i)
		case "--to":
			req.Payload.To = next(&i)
		case "--idle":
			v := next(&i)
			minutes, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("--idle: %q is not a number", v)
			}
			req.Payload.IdleMinutes = minutes
		default:
			return nil, fmt.Errorf("unknown option %s", args[i])
		}
	}

	if req.Name == "" {
		return nil, fmt.Errorf("--name is required")
	}
	if req.Payload.Kind == "sweep" {
		req.Payload.Kind = cron.PayloadSweepSessions
	}

	set := 0
	for _, v := range []string{everySec, cronExpr, atValue} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of --every, --cron or --at must be specified")
	}

	switch {
	case everySec != "":
		sec, err := strconv.ParseInt(everySec, 10, 64)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("--every: %q is not a positive number of seconds", everySec)
		}
		everyMS := sec * 1000
		req.Schedule = cron.CronSchedule{Kind: cron.ScheduleEvery, EveryMS: &everyMS}
	case cronExpr != "":
		req.Schedule = cron.CronSchedule{Kind: cron.ScheduleCron, Expr: cronExpr, TZ: tz}
	default:
		at, err := parseAt(atValue, now)
		if err != nil {
			return nil, err
		}
		atMS := at.UnixMilli()
		req.Schedule = cron.CronSchedule{Kind: cron.ScheduleAt, AtMS: &atMS}
	}

	if err := cron.ValidateSchedule(req.Schedule); err != nil {
		return nil, err
	}
	if err := cron.ValidatePayload(req.Payload); err != nil {
		return nil, err
	}
	return req, nil
}

func parseAt(v string, now time.Time) (time.Time, error) {
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
		if sec <= 0 {
			return time.Time{}, fmt.Errorf("--at: seconds must be positive")
		}
		return now.Add(time.Duration(sec) * time.Second), nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: want RFC3339 time or seconds, got %q", v)
	}
	if !t.After(now) {
		return time.Time{}, fmt.Errorf("--at: %s is in the past", v)
	}
	return t, nil
}

func cronAddCmd(storePath string, args []string) {
	req, err := parseCronAddArgs(args, time.Now())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	cs := cron.NewCronService(storePath, nil)
	job, err := cs.AddJob(req.Name, req.Schedule, req.Payload)
	if err != nil {
		fmt.Printf("Error adding job: %v\n", err)
		return
	}

	fmt.Printf("✓ Added job '%s' (%s)\n", job.Name, job.ID)
}

func cronRemoveCmd(storePath, jobID string) {
	cs := cron.NewCronService(storePath, nil)
	if cs.RemoveJob(jobID) {
		fmt.Printf("✓ Removed job %s\n", jobID)
	} else {
		fmt.Printf("✗ Job %s not found\n", jobID)
	}
}

func cronEnableCmd(storePath string, disable bool) {
	if len(os.Args) < 4 {
		fmt.Println("Usage: picochat cron enable/disable <job_id>")
		return
	}

	jobID := os.Args[3]
	cs := cron.NewCronService(storePath, nil)

	job := cs.EnableJob(jobID, !disable)
	if job == nil {
		fmt.Printf("✗ Job %s not found\n", jobID)
		return
	}

	status := "enabled"
	if disable {
		status = "disabled"
	}
	fmt.Printf("✓ Job '%s' %s\n", job.Name, status)
}
