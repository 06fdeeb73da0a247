// Command bake is the build orchestrator's CLI front end (spec §6): a
// thin urfave/cli wrapper that translates global flags into
// path-resolver, logging and orchestrator settings, crawls a project
// tree, and drives the
// orchestrator through one of the subcommands below.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/bake/internal/bakeconfig"
	_ "github.com/standardbeagle/bake/internal/driver/langc"
	"github.com/standardbeagle/bake/internal/driver"
	"github.com/standardbeagle/bake/internal/graph"
	"github.com/standardbeagle/bake/internal/obs"
	"github.com/standardbeagle/bake/internal/orchestrator"
	"github.com/standardbeagle/bake/internal/pathenv"
	"github.com/standardbeagle/bake/internal/project"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:                   "bake",
		Usage:                  "demand-driven build orchestrator",
		Version:                version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cfg", Usage: "configuration name (debug, release, ...)", Value: "debug"},
			&cli.StringFlag{Name: "arch", Usage: "platform triple override"},
			&cli.StringFlag{Name: "env", Usage: "environment home override ($BAKE_HOME)"},
			&cli.BoolFlag{Name: "strict", Usage: "accepted for compatibility; has no effect on the build"},
			&cli.BoolFlag{Name: "optimize", Usage: "accepted for compatibility; has no effect on the build"},
			&cli.BoolFlag{Name: "r", Usage: "recursive dependency resolution"},
			&cli.BoolFlag{Name: "v", Usage: "verbose logging"},
			&cli.BoolFlag{Name: "trace", Usage: "trace-level logging"},
			&cli.BoolFlag{Name: "debug", Usage: "debug logging to a temp file"},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			buildCommand("build", false),
			buildCommand("rebuild", true),
			cleanCommand(),
			lifecycleCommand("test", func(o *orchestrator.Orchestrator, p *project.Project) error {
				return runLifecycleOnly(o, p, "test")
			}),
			lifecycleCommand("coverage", func(o *orchestrator.Orchestrator, p *project.Project) error {
				return runLifecycleOnly(o, p, "coverage")
			}),
			runCommand(),
			newCommand(),
			infoCommand(),
			listCommand(),
			exportCommand(),
			envCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bake:", err)
		os.Exit(1)
	}
}

func setupLogging(c *cli.Context) error {
	obs.SetVerbosity(c.Bool("v"), c.Bool("trace"))
	if c.Bool("debug") {
		path, err := obs.OpenLogFile()
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "bake: logging to", path)
	}
	return nil
}

// setup builds the shared env/graph/orchestrator triple every
// subcommand needs, crawling root for project.json manifests.
func setup(c *cli.Context, root string) (*pathenv.Env, *graph.Graph, *orchestrator.Orchestrator, error) {
	env := pathenv.Init(c.String("env"), root, c.String("cfg"))
	if arch := c.String("arch"); arch != "" {
		env.PlatformTriple = arch
	}

	cfg, err := bakeconfig.Load(env.Home)
	if err != nil {
		return nil, nil, nil, err
	}

	g, err := graph.Crawl(root, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	graph.Finalize(g)

	if c.Bool("r") {
		if err := graph.ResolveRecursive(g, func(id string) (string, bool) {
			if dir := env.Locate(id, pathenv.KindDevSource); dir != "" {
				return dir, true
			}
			return "", false
		}); err != nil {
			return nil, nil, nil, err
		}
	}

	orch := orchestrator.New(env, g, driver.Default(), cfg, c.String("cfg"))
	return env, g, orch, nil
}

func rootArg(c *cli.Context) string {
	if c.NArg() > 0 {
		return c.Args().First()
	}
	wd, _ := os.Getwd()
	return wd
}

func buildCommand(name string, forceRebuild bool) *cli.Command {
	cmd := &cli.Command{
		Name:      name,
		Usage:     "build every discovered project",
		ArgsUsage: "[path]",
		Action: func(c *cli.Context) error {
			_, g, orch, err := setup(c, rootArg(c))
			if err != nil {
				return err
			}
			if forceRebuild {
				// Clean first so every object and artefact is missing and
				// the rule engine rebuilds all of them.
				for _, p := range g.All() {
					if p.Placeholder {
						continue
					}
					if err := orch.Clean(p, false); err != nil {
						return err
					}
				}
			}
			if c.Bool("watch") {
				stop := make(chan struct{})
				go func() {
					awaitSignal()
					close(stop)
				}()
				return orch.Watch(stop)
			}
			return orch.Walk()
		},
	}
	if !forceRebuild {
		cmd.Flags = []cli.Flag{
			&cli.BoolFlag{Name: "watch", Usage: "stay resident and rebuild on source changes"},
		}
	}
	return cmd
}

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:      "clean",
		Usage:     "run the clean phase instead of build",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "full", Usage: "remove all platforms' bin outputs, not just the current one"},
		},
		Action: func(c *cli.Context) error {
			_, g, orch, err := setup(c, rootArg(c))
			if err != nil {
				return err
			}
			for _, p := range g.All() {
				if err := orch.Clean(p, c.Bool("full")); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func lifecycleCommand(name string, run func(*orchestrator.Orchestrator, *project.Project) error) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     fmt.Sprintf("run the %s lifecycle callback for every project", name),
		ArgsUsage: "[path]",
		Action: func(c *cli.Context) error {
			_, g, orch, err := setup(c, rootArg(c))
			if err != nil {
				return err
			}
			if err := orch.Walk(); err != nil {
				return err
			}
			for _, p := range g.All() {
				if err := run(orch, p); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func runLifecycleOnly(o *orchestrator.Orchestrator, p *project.Project, which string) error {
	// test/coverage are driver lifecycle callbacks invoked after a
	// successful build, not part of the nine ordered phases (spec §4.4
	// lists them alongside build/clean as lifecycle names).
	obs.Orchestrator("%s: running %s callback", p.ID, which)
	for _, b := range p.Drivers {
		_, plug, err := o.Registry.Load(b.DriverID)
		if err != nil {
			return err
		}
		ctx := driver.NewCallContext(p, b.DriverID, o.ConfigName, o.Env, b.Attrs, o.Graph.Get, new([]string))
		if t, ok := plug.(driver.Tester); ok && which == "test" {
			err = t.Test(ctx)
		} else if cv, ok := plug.(driver.Coverager); ok && which == "coverage" {
			err = cv.Coverage(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "build then exec the named application's artefact",
		ArgsUsage: "<project-id> [args...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("run requires a project id")
			}
			// The arguments after the id go to the application, so the
			// crawl root is the working directory.
			root, _ := os.Getwd()
			_, g, orch, err := setup(c, root)
			if err != nil {
				return err
			}
			if err := orch.Walk(); err != nil {
				return err
			}
			p, ok := g.Get(c.Args().First())
			if !ok {
				return unknownProjectError(g, c.Args().First())
			}
			if p.ArtefactPath == "" {
				return fmt.Errorf("project %q has no built artefact", p.ID)
			}
			cmd := exec.Command(p.ArtefactPath, c.Args().Tail()...)
			cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
			return cmd.Run()
		},
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "scaffold a new project from a template (stub)",
		ArgsUsage: "<template-id> <project-id>",
		Action: func(c *cli.Context) error {
			return fmt.Errorf("bake new: template scaffolding is not implemented in this build")
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "print one project's resolved metadata",
		ArgsUsage: "<project-id> [path]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("info requires a project id")
			}
			root := c.Args().Get(1)
			if root == "" {
				root, _ = os.Getwd()
			}
			_, g, _, err := setup(c, root)
			if err != nil {
				return err
			}
			p, ok := g.Get(c.Args().First())
			if !ok {
				return unknownProjectError(g, c.Args().First())
			}
			fmt.Printf("id: %s\ntype: %s\npath: %s\nlanguage: %s\nuse: %v\n",
				p.ID, p.Type, p.Path, p.Language, p.AllDependencies())
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "list every discovered project",
		ArgsUsage: "[path]",
		Action: func(c *cli.Context) error {
			_, g, _, err := setup(c, rootArg(c))
			if err != nil {
				return err
			}
			for _, p := range g.All() {
				fmt.Printf("%s\t%s\t%s\n", p.ID, p.Type, p.Path)
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "print the resolved environment paths for a project",
		ArgsUsage: "<project-id> [path]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("export requires a project id")
			}
			root := c.Args().Get(1)
			if root == "" {
				root, _ = os.Getwd()
			}
			env, _, _, err := setup(c, root)
			if err != nil {
				return err
			}
			id := c.Args().First()
			fmt.Printf("include: %s\netc: %s\nlib: %s\nbin: %s\n",
				env.Locate(id, pathenv.KindInclude), env.Locate(id, pathenv.KindEtc),
				env.LibDir(), env.BinDir())
			return nil
		},
	}
}

func envCommand() *cli.Command {
	return &cli.Command{
		Name:  "env",
		Usage: "print the resolved $BAKE_HOME environment layout",
		Action: func(c *cli.Context) error {
			env := pathenv.Init(c.String("env"), rootArg(c), c.String("cfg"))
			fmt.Printf("home: %s\ntarget: %s\nconfig: %s\nplatform: %s\n",
				env.Home, env.Target, env.Config, env.PlatformTriple)
			return nil
		},
	}
}

func unknownProjectError(g *graph.Graph, id string) error {
	if suggestion, ok := g.Suggest(id); ok {
		return fmt.Errorf("unknown project %q (did you mean %q?)", id, suggestion)
	}
	return fmt.Errorf("unknown project %q", id)
}

// awaitSignal blocks until SIGINT/SIGTERM, used by `bake build --watch`.
func awaitSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}
