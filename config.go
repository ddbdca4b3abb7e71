// Copyright (c) 2019-2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "quipflip.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "quipflip.log"
	defaultListen         = ":8000"
	defaultDBURL          = "quipflip@tcp(localhost:3306)/quipflip"

	defaultStartingBalance  = 1000
	defaultDailyBonus       = 100
	defaultPromptCost       = 100
	defaultCopyCost         = 100
	defaultCopyCostDiscount = 90
	defaultVoteCost         = 1
	defaultVotePayout       = 5
	defaultPrizePool        = 300
	defaultDiscountDepth    = 10
	defaultMaxOutstanding   = 10
	defaultMaxVotes         = 20

	defaultPromptWindow    = 180 * time.Second
	defaultCopyWindow      = 180 * time.Second
	defaultVoteWindow      = 60 * time.Second
	defaultGraceBand       = 5 * time.Second
	defaultThirdVoteWindow = 600 * time.Second
	defaultFifthVoteWindow = 60 * time.Second
	defaultAbandonCooldown = 24 * time.Hour
	defaultSweepInterval   = 2 * time.Second

	defaultSimilarityThreshold = 0.85
	defaultWordSimilarity      = 0.8

	defaultRateLimit     = 100
	defaultVoteRateLimit = 20
)

var (
	quipflipHomeDir   = appDataDir("quipflip")
	defaultConfigFile = filepath.Join(quipflipHomeDir, defaultConfigFilename)
	defaultDataDir    = quipflipHomeDir
	defaultLogDir     = filepath.Join(quipflipHomeDir, defaultLogDirname)
	defaultAPICert    = filepath.Join(quipflipHomeDir, "api.cert")
	defaultAPIKey     = filepath.Join(quipflipHomeDir, "api.key")
)

// config defines the configuration options for quipflip.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion  bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile   string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir      string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir       string `long:"logdir" description:"Directory to log output."`
	DebugLevel   string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Listen       string `long:"listen" description:"Listen for connections on the specified interface/port (default all interfaces port 8000)"`
	NoTLS        bool   `long:"notls" description:"Serve the API over plain HTTP (for use behind a terminating proxy)"`
	APICert      string `long:"apicert" description:"File containing the TLS certificate for the API listener"`
	APIKey       string `long:"apikey" description:"File containing the TLS key for the API listener"`
	APISecret    string `long:"apisecret" env:"SECRET_KEY" description:"Secret string used to sign access tokens"`
	CookieSecret string `long:"cookiesecret" env:"COOKIE_SECRET" description:"Secret string used to authenticate refresh session cookies"`
	CookieSecure bool   `long:"cookiesecure" description:"Set the secure flag on session cookies (requires TLS or a terminating proxy)"`
	RealIPHeader string `long:"realipheader" description:"Use an IP address from the specified HTTP header instead of the network connection address, e.g. X-Real-IP"`

	DBURL    string `long:"dburl" env:"DATABASE_URL" description:"MySQL DSN in go-sql-driver form, e.g. quipflip:password@tcp(localhost:3306)/quipflip"`
	RedisURL string `long:"redisurl" env:"REDIS_URL" description:"Redis URL used for locks, rate limits, and queue depth caching (optional, falls back to in-process equivalents)"`

	Dictionary string `long:"dictionary" description:"File containing the newline-delimited word list used by phrase validation"`
	PromptFile string `long:"promptfile" description:"File containing newline-delimited prompt texts used to seed an empty prompt table"`

	StartingBalance  int `long:"startingbalance" description:"Balance granted to newly created players"`
	DailyBonus       int `long:"dailybonus" description:"Amount credited by the daily login bonus"`
	PromptCost       int `long:"promptcost" description:"Cost to start a prompt round"`
	CopyCost         int `long:"copycost" description:"Cost to start a copy round"`
	CopyCostDiscount int `long:"copycostdiscount" description:"Copy cost while the prompt queue discount is active"`
	VoteCost         int `long:"votecost" description:"Cost to start a vote round"`
	VotePayout       int `long:"votepayout" description:"Payout for voting for the original phrase"`
	PrizePool        int `long:"prizepool" description:"Base pool assigned to every phraseset, before system contributions"`
	DiscountDepth    int `long:"discountdepth" description:"Prompt queue depth that must be exceeded before the copy discount activates"`
	MaxOutstanding   int `long:"maxoutstanding" description:"Maximum unfinalized phrasesets a player may have open as prompter"`
	MaxVotes         int `long:"maxvotes" description:"Vote count at which a phraseset closes unconditionally"`

	PromptWindow    time.Duration `long:"promptwindow" description:"Time allowed to submit a prompt phrase"`
	CopyWindow      time.Duration `long:"copywindow" description:"Time allowed to submit a copy phrase"`
	VoteWindow      time.Duration `long:"votewindow" description:"Time allowed to submit a vote"`
	GraceBand       time.Duration `long:"graceband" description:"Extra time after a round window during which a submission is still accepted"`
	ThirdVoteWindow time.Duration `long:"thirdvotewindow" description:"Time after the third vote at which a phraseset with no further votes begins closing"`
	FifthVoteWindow time.Duration `long:"fifthvotewindow" description:"Time a closing phraseset remains open to further votes"`
	AbandonCooldown time.Duration `long:"abandoncooldown" description:"Time an abandoned assignment is withheld from the abandoning player"`
	SweepInterval   time.Duration `long:"sweepinterval" description:"Interval between timeout sweeps"`

	SimilarityThreshold float64 `long:"similaritythreshold" description:"Cosine similarity above which a copy phrase is rejected"`
	WordSimilarity      float64 `long:"wordsimilarity" description:"Per-word similarity ratio above which two significant words conflict"`

	RateLimit     int `long:"ratelimit" description:"Maximum requests per player per minute"`
	VoteRateLimit int `long:"voteratelimit" description:"Maximum vote round starts per player per minute"`
}

// serviceOptions defines the configuration options for the daemon as a service
// on Windows.
type serviceOptions struct {
	ServiceCommand string `short:"s" long:"service" description:"Service command {install, remove, start, stop}"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(quipflipHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsystems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// filesExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, so *serviceOptions, options flags.Options) *flags.Parser {
	parser := flags.NewParser(cfg, options)
	if runtime.GOOS == "windows" {
		parser.AddGroup("Service Options", "Service options which are only applicable to windows", so)
	}
	return parser
}

// validateGameSettings checks the economy and timing options for values the
// game rules cannot operate with.
func (cfg *config) validateGameSettings() error {
	if cfg.StartingBalance < 0 {
		return fmt.Errorf("startingbalance must not be negative: %v",
			cfg.StartingBalance)
	}
	if cfg.DailyBonus < 0 {
		return fmt.Errorf("dailybonus must not be negative: %v", cfg.DailyBonus)
	}
	if cfg.PromptCost <= 0 {
		return fmt.Errorf("promptcost must be positive: %v", cfg.PromptCost)
	}
	if cfg.CopyCost <= 0 {
		return fmt.Errorf("copycost must be positive: %v", cfg.CopyCost)
	}
	if cfg.CopyCostDiscount <= 0 || cfg.CopyCostDiscount > cfg.CopyCost {
		return fmt.Errorf("copycostdiscount must be positive and must not "+
			"exceed copycost: %v", cfg.CopyCostDiscount)
	}
	if cfg.VoteCost < 0 {
		return fmt.Errorf("votecost must not be negative: %v", cfg.VoteCost)
	}
	if cfg.VotePayout < 0 {
		return fmt.Errorf("votepayout must not be negative: %v", cfg.VotePayout)
	}
	if cfg.PrizePool <= 0 {
		return fmt.Errorf("prizepool must be positive: %v", cfg.PrizePool)
	}
	if cfg.DiscountDepth <= 0 {
		return fmt.Errorf("discountdepth must be positive: %v", cfg.DiscountDepth)
	}
	if cfg.MaxOutstanding <= 0 {
		return fmt.Errorf("maxoutstanding must be positive: %v", cfg.MaxOutstanding)
	}
	if cfg.MaxVotes < 5 {
		return fmt.Errorf("maxvotes must be at least 5: %v", cfg.MaxVotes)
	}
	if cfg.PromptWindow <= 0 || cfg.CopyWindow <= 0 || cfg.VoteWindow <= 0 {
		return fmt.Errorf("round windows must be positive: prompt %v, "+
			"copy %v, vote %v", cfg.PromptWindow, cfg.CopyWindow, cfg.VoteWindow)
	}
	if cfg.GraceBand < 0 {
		return fmt.Errorf("graceband must not be negative: %v", cfg.GraceBand)
	}
	if cfg.ThirdVoteWindow <= 0 {
		return fmt.Errorf("thirdvotewindow must be positive: %v",
			cfg.ThirdVoteWindow)
	}
	if cfg.FifthVoteWindow <= 0 {
		return fmt.Errorf("fifthvotewindow must be positive: %v",
			cfg.FifthVoteWindow)
	}
	if cfg.AbandonCooldown < 0 {
		return fmt.Errorf("abandoncooldown must not be negative: %v",
			cfg.AbandonCooldown)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("sweepinterval must be positive: %v", cfg.SweepInterval)
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		return fmt.Errorf("similaritythreshold must be in (0, 1]: %v",
			cfg.SimilarityThreshold)
	}
	if cfg.WordSimilarity <= 0 || cfg.WordSimilarity > 1 {
		return fmt.Errorf("wordsimilarity must be in (0, 1]: %v",
			cfg.WordSimilarity)
	}
	if cfg.RateLimit <= 0 || cfg.VoteRateLimit <= 0 {
		return fmt.Errorf("rate limits must be positive: general %v, vote %v",
			cfg.RateLimit, cfg.VoteRateLimit)
	}
	return nil
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//	1) Start with a default config with sane settings
//	2) Pre-parse the command line to check for an alternative config file
//	3) Load configuration file overwriting defaults with any specified options
//	4) Parse CLI options and overwrite/add any specified options
//
// The above results in quipflip functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile:          defaultConfigFile,
		DataDir:             defaultDataDir,
		LogDir:              defaultLogDir,
		DebugLevel:          defaultLogLevel,
		Listen:              defaultListen,
		APICert:             defaultAPICert,
		APIKey:              defaultAPIKey,
		DBURL:               defaultDBURL,
		StartingBalance:     defaultStartingBalance,
		DailyBonus:          defaultDailyBonus,
		PromptCost:          defaultPromptCost,
		CopyCost:            defaultCopyCost,
		CopyCostDiscount:    defaultCopyCostDiscount,
		VoteCost:            defaultVoteCost,
		VotePayout:          defaultVotePayout,
		PrizePool:           defaultPrizePool,
		DiscountDepth:       defaultDiscountDepth,
		MaxOutstanding:      defaultMaxOutstanding,
		MaxVotes:            defaultMaxVotes,
		PromptWindow:        defaultPromptWindow,
		CopyWindow:          defaultCopyWindow,
		VoteWindow:          defaultVoteWindow,
		GraceBand:           defaultGraceBand,
		ThirdVoteWindow:     defaultThirdVoteWindow,
		FifthVoteWindow:     defaultFifthVoteWindow,
		AbandonCooldown:     defaultAbandonCooldown,
		SweepInterval:       defaultSweepInterval,
		SimilarityThreshold: defaultSimilarityThreshold,
		WordSimilarity:      defaultWordSimilarity,
		RateLimit:           defaultRateLimit,
		VoteRateLimit:       defaultVoteRateLimit,
	}

	// Service options which are only added on Windows.
	serviceOpts := serviceOptions{}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, &serviceOpts, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, &serviceOpts, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n",
				err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(quipflipHomeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		str := "%s: failed to create home directory: %v"
		err := fmt.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Clean and expand all file paths before use.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.APICert = cleanAndExpandPath(cfg.APICert)
	cfg.APIKey = cleanAndExpandPath(cfg.APIKey)
	if cfg.Dictionary != "" {
		cfg.Dictionary = cleanAndExpandPath(cfg.Dictionary)
	}
	if cfg.PromptFile != "" {
		cfg.PromptFile = cleanAndExpandPath(cfg.PromptFile)
	}

	// Initialize log rotation.  After the log rotation has been
	// initialized, the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.APISecret == "" {
		str := "%s: the apisecret option is not set"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.CookieSecret == "" {
		str := "%s: the cookiesecret option is not set"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.DBURL == "" {
		str := "%s: the dburl option is not set"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.Dictionary == "" {
		str := "%s: the dictionary option is not set"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if !fileExists(cfg.Dictionary) {
		str := "%s: the dictionary file %v does not exist"
		err := fmt.Errorf(str, funcName, cfg.Dictionary)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.PromptFile != "" && !fileExists(cfg.PromptFile) {
		str := "%s: the prompt file %v does not exist"
		err := fmt.Errorf(str, funcName, cfg.PromptFile)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if err := cfg.validateGameSettings(); err != nil {
		str := "%s: %v"
		err := fmt.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Add the default listen port if there is not already one specified.
	cfg.Listen = normalizeAddress(cfg.Listen, "8000")

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}

// appDataDir returns an operating system specific directory to be used for
// storing application data.  The returned path is not guaranteed to exist.
func appDataDir(appName string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "."
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData != "" {
			return filepath.Join(appData, strings.Title(appName))
		}
	case "darwin":
		return filepath.Join(homeDir, "Library",
			"Application Support", strings.Title(appName))
	}

	return filepath.Join(homeDir, "."+appName)
}
