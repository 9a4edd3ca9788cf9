package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/asyncapp/internal/app"
	"github.com/phrazzld/asyncapp/internal/config"
	"github.com/phrazzld/asyncapp/internal/messenger"
	"github.com/phrazzld/asyncapp/internal/task"
)

// errDemoFailure is raised on purpose by the exceptional demo task
var errDemoFailure = errors.New("exceptional task failed on purpose")

// registerDemo adds a set of sample tasks exercising every task kind.
func registerDemo(a *app.App, cfg config.DemoConfig, logger *slog.Logger) error {
	log := logger.With("component", "demo")

	specs := []task.Spec{
		{Kind: "init", Name: "init_resources", Function: initResources, Args: []any{"network"}},
		{Kind: "continuous", Name: "waiter", Function: waiter, Args: []any{2 * time.Second}},
		{Kind: "continuous", Name: "sleeper", Function: sleeper(log), Args: []any{500 * time.Millisecond}},
		{Kind: "continuous", Name: "exceptional", Function: exceptional, Args: []any{time.Second}},
		{Kind: "continuous", Name: "return_42", Function: return42},
		{Kind: "continuous", Name: "crunch", Function: crunch, Blocking: true},
		{Kind: "periodic", Name: "publish_ts", Function: publishTimestamp(a), Frequency: 1},
		{Kind: "cleanup", Name: "thats_was", Function: thatsWas(log), Args: []any{"it"}},
		{Kind: "cleanup", Name: "thats_was_all", Function: thatsWas(log), Args: []any{"all"}},
	}
	if cfg.ExitAfter > 0 {
		specs = append(specs, task.Spec{
			Kind:     "continuous",
			Name:     "exit_after",
			Function: exitAfter(a),
			Args:     []any{cfg.ExitAfter},
		})
	}

	if err := a.AddTasks(specs); err != nil {
		return err
	}
	return a.AddPeriodical(sayHello(log), cfg.SayHelloFrequency,
		task.WithName("say_hello"), task.WithArgs("Mate"), task.WithMonitor())
}

// sleep waits for d or until ctx is cancelled, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func durationArg(args task.Args, i int, fallback time.Duration) time.Duration {
	if d, ok := args.Arg(i).(time.Duration); ok {
		return d
	}
	return fallback
}

func initResources(ctx context.Context, args task.Args) (any, error) {
	what, _ := args.Arg(0).(string)
	sleep(ctx, 100*time.Millisecond)
	return fmt.Sprintf("initialized %s", what), nil
}

func waiter(ctx context.Context, args task.Args) (any, error) {
	if !sleep(ctx, durationArg(args, 0, 2*time.Second)) {
		return "interrupted while waiting", nil
	}
	return "done with waiting", nil
}

func sleeper(log *slog.Logger) task.Func {
	return func(ctx context.Context, args task.Args) (any, error) {
		every := durationArg(args, 0, 500*time.Millisecond)
		naps := 0
		for {
			log.Info("message from the sleeper", "sleep_for", every)
			if !sleep(ctx, every) {
				return naps, nil
			}
			naps++
		}
	}
}

func exceptional(ctx context.Context, args task.Args) (any, error) {
	sleep(ctx, durationArg(args, 0, time.Second))
	return nil, errDemoFailure
}

func return42(ctx context.Context, _ task.Args) (any, error) {
	sleep(ctx, time.Second)
	return 42, nil
}

// crunch ignores its context on purpose; it runs on the worker pool
func crunch(_ context.Context, _ task.Args) (any, error) {
	time.Sleep(300 * time.Millisecond)
	return "crunched", nil
}

func publishTimestamp(a *app.App) task.Func {
	ns := messenger.Namespace(a.Name(), "ts")
	return func(ctx context.Context, _ task.Args) (any, error) {
		return nil, a.Messenger().Publish(ctx, ns, float64(time.Now().UnixNano())/1e9)
	}
}

func sayHello(log *slog.Logger) task.Func {
	return func(ctx context.Context, args task.Args) (any, error) {
		to, ok := args.Arg(0).(string)
		if !ok {
			to = "You"
		}
		log.Info(fmt.Sprintf("Hello %s!", to))
		return nil, nil
	}
}

func exitAfter(a *app.App) task.Func {
	return func(ctx context.Context, args task.Args) (any, error) {
		if sleep(ctx, durationArg(args, 0, 10*time.Second)) {
			a.Exit("demo run finished")
		}
		return nil, nil
	}
}

func thatsWas(log *slog.Logger) task.Func {
	return func(_ context.Context, args task.Args) (any, error) {
		what, ok := args.Arg(0).(string)
		if !ok {
			what = "it"
		}
		log.Info(fmt.Sprintf("That was %s", what))
		return nil, nil
	}
}
