package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"ilp-go/internal/app"
	"ilp-go/internal/config"
	"ilp-go/internal/database"
	"ilp-go/internal/encryption"
	"ilp-go/internal/ilp"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := app.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an ILPApp. The caller must defer app.Close().
func newApp(command string) (*app.ILPApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewILPApp(cfg, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("passphrase prompt needs a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

func newPassphrase() (string, error) {
	first, err := readPassphrase("New passphrase: ")
	if err != nil {
		return "", err
	}
	second, err := readPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

// printResult writes the response payload, or a failure line naming the request.
func printResult(result *ilp.Result, err error) error {
	if err != nil {
		if result != nil {
			return fmt.Errorf("request %s: %w", result.RequestID, err)
		}
		return err
	}
	os.Stdout.Write(result.Payload)
	fmt.Println()
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "ilp",
	Short:        "Course provisioning from the ILP feed",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration, database and archive keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		noEncryption, _ := cmd.Flags().GetBool("no-encryption")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])
		if noEncryption {
			cfg.Encryption = config.EncryptionConfig{Type: "none"}
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
		if err != nil {
			return fmt.Errorf("creating database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		if enc != nil && !enc.IsConfigured() {
			pass, err := newPassphrase()
			if err != nil {
				return err
			}
			if err := enc.Setup(pass); err != nil {
				return fmt.Errorf("generating archive keys: %w", err)
			}
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID:      %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:         %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:          %s\n", cfg.LogDir)
		fmt.Printf("Database:         %s\n", cfg.Database.Type)
		fmt.Printf("Archive:          %s (%s)\n", cfg.Archive.Name, cfg.Archive.Type)
		fmt.Printf("Spool:            %s\n", cfg.Spool.Type)
		fmt.Printf("Context cache:    %s\n", cfg.Cache.Type)
		fmt.Printf("Default category: %d\n", cfg.Provisioning.DefaultCategory)
		return nil
	},
}

// course command
var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Handle course requests",
}

var courseHandleCmd = &cobra.Command{
	Use:   "handle [FILE]",
	Short: "Handle one request payload (stdin when FILE is omitted or -)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening request: %w", err)
			}
			defer f.Close()
			in = f
		}

		a, err := newApp("course handle")
		if err != nil {
			return err
		}
		defer a.Close()

		return printResult(a.HandleReader(in))
	},
}

var courseGradesCmd = &cobra.Command{
	Use:   "grades COURSE_ID",
	Short: "Report enrolments and grades for a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")

		courseID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid course id %q", args[0])
		}

		a, err := newApp("course grades")
		if err != nil {
			return err
		}
		defer a.Close()

		return printResult(a.CourseGrades(courseID, page, perPage))
	},
}

// spool command
var spoolCmd = &cobra.Command{
	Use:   "spool",
	Short: "Queue request payloads for later handling",
}

var spoolAddCmd = &cobra.Command{
	Use:   "add FILE...",
	Short: "Queue request payloads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("spool add")
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.SpoolFiles(args)
		for _, item := range items {
			fmt.Printf("%s  %s  %d\n", item.Checksum[:12], item.Name, item.Size)
		}
		if err != nil {
			return fmt.Errorf("spooling: %w", err)
		}
		return nil
	},
}

var spoolProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Handle queued payloads in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("spool process")
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.ProcessSpool()
		fmt.Printf("Handled %d request(s)\n", count)
		return err
	},
}

var spoolStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queued payloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("spool status")
		if err != nil {
			return err
		}
		defer a.Close()

		count, size, err := a.SpoolStatus()
		if err != nil {
			return err
		}
		fmt.Printf("%d payload(s) queued, %d bytes\n", count, size)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View request history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No requests recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %s  %-17s  %-20s  %s  %-7s  %s  %s\n",
				op.ID,
				op.RequestID,
				op.Action,
				op.IDNumber,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Message,
			)
		}
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect archived payloads",
}

var archiveShowCmd = &cobra.Command{
	Use:   "show REQUEST_ID",
	Short: "Print an archived request (or its response)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showResponse, _ := cmd.Flags().GetBool("response")
		name := ilp.ArchiveRequest
		if showResponse {
			name = ilp.ArchiveResponse
		}

		a, err := newApp("archive show")
		if err != nil {
			return err
		}
		defer a.Close()

		prompt := func() (string, error) { return readPassphrase("Passphrase: ") }
		if err := a.ShowArchived(args[0], name, prompt, os.Stdout); err != nil {
			return err
		}
		fmt.Println()
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect context cache invalidation",
}

var cacheDirtyCmd = &cobra.Command{
	Use:   "dirty",
	Short: "List context paths marked dirty by category changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		clearPaths, _ := cmd.Flags().GetBool("clear")

		a, err := newApp("cache dirty")
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := a.DirtyContexts()
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		if clearPaths {
			return a.ClearDirtyContexts(paths)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("no-encryption", false, "Archive payloads without encryption")
	configCmd.AddCommand(configListCmd)

	// course subcommands
	courseCmd.AddCommand(courseHandleCmd)
	courseCmd.AddCommand(courseGradesCmd)
	courseGradesCmd.Flags().Int("page", ilp.DefaultPageNumber, "Page number")
	courseGradesCmd.Flags().Int("per-page", ilp.DefaultPerPage, "Enrolments per page")

	// spool subcommands
	spoolCmd.AddCommand(spoolAddCmd)
	spoolCmd.AddCommand(spoolProcessCmd)
	spoolCmd.AddCommand(spoolStatusCmd)

	archiveCmd.AddCommand(archiveShowCmd)
	archiveShowCmd.Flags().Bool("response", false, "Show the response instead of the request")

	cacheCmd.AddCommand(cacheDirtyCmd)
	cacheDirtyCmd.Flags().Bool("clear", false, "Clear the listed paths")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(courseCmd)
	rootCmd.AddCommand(spoolCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of requests to show")
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(cacheCmd)
}
