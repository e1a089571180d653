package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bcilog/bcilog"
	"github.com/bcilog/bcilog/internal/sessiondb"
	"github.com/bcilog/bcilog/openbci"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err2 := os.MkdirAll(dir, 0775); err2 != nil {
			return "", err2
		}
	}

	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper says where to find config files, registers the defaults and
// reads the file. An explicit configFile overrides the search path.
func setupViper(configFile string) error {
	bcilog.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("BCILOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		HOME, err := os.UserHomeDir()
		if err != nil {
			fmt.Printf("Error finding User Home Dir: %s\n", err)
		}
		dotBcilog := filepath.Join(HOME, ".bcilog")
		const filename string = "config"
		const suffix string = ".yaml"
		if _, err := makeFileExist(dotBcilog, filename+suffix); err != nil {
			return err
		}
		viper.SetConfigName(filename)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(filepath.FromSlash("/etc/bcilog"))
		viper.AddConfigPath(dotBcilog)
		viper.AddConfigPath(".")
	}
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	}, "", log.LstdFlags)
}

func main() {
	os.Exit(run())
}

// run does all the work of main, so that deferred cleanup (status publisher,
// database, CPU profile) finishes before the process exits.
func run() int {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	bcilog.Build.Date = buildDate
	bcilog.Build.Githash = githash
	bcilog.Build.Gitdate = gitdate
	bcilog.Build.Summary = fmt.Sprintf("bcilog version %s (git commit %s of %s)", bcilog.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		bcilog.Build.Host = host
	} else {
		bcilog.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	configFile := flag.String("config", "", "read this config file instead of searching for config.yaml")
	simulate := flag.Bool("sim", false, "acquire from a simulated board on localhost instead of the WiFi shield")
	output := flag.String("o", "", "output .bci file (overrides writer.file)")
	cpuprofile := flag.String("cpuprofile", "", "write CPU profile to given file")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is bcilog version %s\n", bcilog.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		return 0
	}

	banner := fmt.Sprintf("\nThis is bcilog version %s (git commit %s)\n", bcilog.Build.Version, githash)
	fmt.Print(banner)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// Start logging problems and updates to 2 log files.
	HOME, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(HOME, ".bcilog", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	logname, err := makeFileExist(logdir, "updates.log")
	if err != nil {
		panic(err)
	}
	bcilog.ProblemLogger = startLogger(problemname)
	bcilog.UpdateLogger = startLogger(logname)
	fmt.Printf("Logging problems to %s\n", problemname)
	fmt.Printf("Logging updates  to %s\n\n", logname)
	bcilog.UpdateLogger.Printf("\n\n\n\n%s", banner)

	if err := setupViper(*configFile); err != nil {
		panic(err)
	}
	config, err := bcilog.ReadConfig(viper.GetViper())
	if err != nil {
		fmt.Printf("Bad configuration: %v\n", err)
		return 2
	}
	if *output != "" {
		config.Session.Filename = *output
	}
	if viper.GetBool("Verbose") {
		fmt.Print(spew.Sdump(config))
	}
	bcilog.UpdateLogger.Printf("Configuration:\n%s", spew.Sdump(config))

	var board bcilog.BoardSession
	if *simulate {
		board = new(bcilog.SimulatedBoard)
	} else {
		if config.BoardAddress == "" {
			fmt.Println("No board address: set board.address in the config file or use -sim")
			return 2
		}
		board = openbci.NewShield(config.BoardAddress, config.Latency)
	}

	session := bcilog.NewSession(board, config.Session)
	if *simulate {
		session.BoardName = "simulated"
	} else {
		session.BoardName = "openbci-wifi@" + config.BoardAddress
	}

	if config.StatusPort > 0 {
		publisher, err := bcilog.StartStatusPublisher(config.StatusPort)
		if err != nil {
			bcilog.ProblemLogger.Printf("No status publisher: %v\n", err)
			fmt.Printf("Warning: no status publisher: %v\n", err)
		} else {
			defer publisher.Close()
			session.Publisher = publisher
		}
	}

	if config.DBEnable {
		db, err := sessiondb.Start(sessiondb.Options(config.DBAddr))
		if err != nil {
			bcilog.ProblemLogger.Printf("Session database unavailable: %v\n", err)
			fmt.Printf("Warning: session database unavailable: %v\n", err)
		}
		defer db.Close()
		session.DB = db
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Session %s writing %s (Ctrl-C to stop)\n", session.ID, session.Filename)
	stats, err := session.Run(ctx)
	fmt.Printf("Session %s: %s\n", session.ID, stats)
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
	return exitCode(err)
}

// exitCode is 0 for a clean session, 3 when the board could not be configured
// or started, and 1 for any other failure.
func exitCode(err error) int {
	var ce *bcilog.ControlError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ce):
		return 3
	}
	return 1
}
