package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/packagehub/hubsync/pkg/catalog"
	"github.com/packagehub/hubsync/pkg/logme"
	"github.com/packagehub/hubsync/pkg/runner"
)

func main() {
	var (
		configFlag     = flag.String("config", "", "Path to the YAML run configuration")
		catalogFlag    = flag.String("catalog", "", "Path to the JSON catalog of tracked repositories")
		exclusionsFlag = flag.String("exclusions", "", "Path to the JSON exclusions file (optional)")
		pushFlag       = flag.Bool("push", false, "Push branches and open pull requests, overriding the config")
		dryRunFlag     = flag.Bool("dry-run", false, "Process everything but push nothing, overriding the config")
	)

	flag.Parse()

	logme.Debugln("config file: ", *configFlag)
	logme.Debugln("catalog file: ", *catalogFlag)
	logme.Debugln("exclusions file: ", *exclusionsFlag)

	if *configFlag == "" {
		logme.Errorln("no config file specified")
		flag.Usage()
		os.Exit(1)
	}
	if *catalogFlag == "" {
		logme.Errorln("no catalog file specified")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := runner.ReadConfig(*configFlag)
	if err != nil {
		logme.Errorln(fmt.Errorf("couldn't read configuration: %w", err))
		os.Exit(1)
	}
	if *pushFlag {
		cfg.Push = true
	}
	// dry-run wins over everything
	if *dryRunFlag {
		cfg.Push = false
	}

	entries, err := catalog.Load(*catalogFlag, *exclusionsFlag)
	if err != nil {
		logme.Errorln(fmt.Errorf("couldn't load catalog: %w", err))
		os.Exit(1)
	}
	if len(entries) == 0 {
		logme.Infoln("catalog is empty, nothing to do")
		return
	}

	r, err := runner.New(cfg)
	if err != nil {
		logme.Errorln(fmt.Errorf("couldn't set up run: %w", err))
		os.Exit(1)
	}

	outcomes, err := r.Run(context.Background(), entries)
	if err != nil {
		logme.Errorln(fmt.Errorf("run failed: %w", err))
		os.Exit(1)
	}

	fmt.Fprint(os.Stdout, runner.Summary(outcomes))

	for _, o := range outcomes {
		if o.Kind == runner.Failed {
			os.Exit(1)
		}
	}
}
