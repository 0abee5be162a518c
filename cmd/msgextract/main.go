package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Napageneral/msgextract/internal/backup"
	"github.com/Napageneral/msgextract/internal/config"
	"github.com/Napageneral/msgextract/internal/extract"
	"github.com/Napageneral/msgextract/internal/normalize"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
	verbose    bool
)

// Result is the JSON envelope every command prints with --json.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "msgextract",
		Short: "Extract messages (SMS/iMessage) to CSV from device backups",
		Long: `msgextract reads an unencrypted device backup, matches every SMS/iMessage
handle to your address book and writes the conversation history as CSV.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Make output more verbose")

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("msgextract %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newBackupsCmd())
	rootCmd.AddCommand(newContactsCmd())
	rootCmd.AddCommand(newNormalizeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init command
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Run: func(cmd *cobra.Command, args []string) {
			type InitResult struct {
				Result
				ConfigDir string `json:"config_dir,omitempty"`
			}

			cfg, err := config.Load()
			if err != nil {
				fail("Failed to load config: %v", err)
			}
			if err := cfg.Save(); err != nil {
				fail("Failed to write config: %v", err)
			}
			dir, err := config.GetConfigDir()
			if err != nil {
				fail("Failed to get config directory: %v", err)
			}

			if jsonOutput {
				printJSON(InitResult{Result: Result{OK: true, Message: "config written"}, ConfigDir: dir})
				return
			}
			fmt.Printf("✓ Config directory: %s\n", dir)
		},
	}
}

// extract command
func newExtractCmd() *cobra.Command {
	var country, backupDir string

	cmd := &cobra.Command{
		Use:   "extract <device-hash> <output-path>",
		Short: "Extract messages from a backup to CSV",
		Long: `Extract messages from the backup identified by <device-hash> and write them
to <output-path> as CSV.

The device hash is the 40 character directory name of the backup, e.g.
9504c9835a9fcd2da71a23b42cd4e7c971a23842. Run "msgextract backups" to list them.`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			type ExtractResult struct {
				Result
				Run *extract.Result `json:"run"`
			}

			cfg, logger := setup()
			opts := runOptions(cfg, logger, country, backupDir, args[0])
			opts.OutputPath = args[1]

			if !jsonOutput {
				fmt.Println("Extracting messages...")
			}
			res, err := extract.Run(context.Background(), opts)
			if err != nil {
				fail("%v", err)
			}

			if jsonOutput {
				printJSON(ExtractResult{Result: Result{OK: true}, Run: res})
				return
			}
			fmt.Printf("Done. File at: %s\n", res.OutputPath)
			fmt.Printf("  Messages: %d (%d without a contact match)\n", res.MessagesWritten, res.Unmatched)
			fmt.Printf("  Contacts: %d\n", res.ContactsLoaded)
			if len(res.Skipped) > 0 {
				fmt.Printf("  Skipped identifiers: %d\n", len(res.Skipped))
			}
		},
	}

	addRunFlags(cmd, &country, &backupDir)
	return cmd
}

// backups command
func newBackupsCmd() *cobra.Command {
	var backupDir string

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List backups under the backup root",
		Run: func(cmd *cobra.Command, args []string) {
			type BackupsResult struct {
				Result
				Root    string        `json:"root"`
				Backups []backup.Info `json:"backups"`
			}

			cfg, logger := setup()
			root, err := cfg.ResolveBackupDir(backupDir)
			if err != nil {
				fail("%v", err)
			}
			infos, err := backup.List(root, logger)
			if err != nil {
				fail("%v", err)
			}

			if jsonOutput {
				printJSON(BackupsResult{Result: Result{OK: true}, Root: root, Backups: infos})
				return
			}
			if len(infos) == 0 {
				fmt.Printf("No backups found in %s\n", root)
				return
			}
			for _, info := range infos {
				enc := ""
				if info.IsEncrypted {
					enc = " [encrypted]"
				}
				fmt.Printf("%s  %s  %-24s iOS %s%s\n",
					info.DeviceHash, info.Date.Local().Format("2006-01-02 15:04"),
					info.DeviceName, info.ProductVersion, enc)
			}
		},
	}

	cmd.Flags().StringVarP(&backupDir, "backup-dir", "d", "", "Path to backup directory (if non-standard)")
	return cmd
}

// contacts command
func newContactsCmd() *cobra.Command {
	var country, backupDir string

	cmd := &cobra.Command{
		Use:   "contacts <device-hash>",
		Short: "Show the normalized address book of a backup",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type ContactEntry struct {
				Identifier string `json:"identifier"`
				FirstName  string `json:"first_name"`
				LastName   string `json:"last_name"`
			}
			type ContactsResult struct {
				Result
				Contacts []ContactEntry      `json:"contacts"`
				Skipped  []normalize.Skipped `json:"skipped,omitempty"`
			}

			cfg, logger := setup()
			opts := runOptions(cfg, logger, country, backupDir, args[0])

			dir, res, err := extract.Contacts(context.Background(), opts)
			if err != nil {
				fail("%v", err)
			}

			entries := make([]ContactEntry, 0, len(dir))
			for key, name := range dir {
				entries = append(entries, ContactEntry{Identifier: key, FirstName: name.First, LastName: name.Last})
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Identifier < entries[j].Identifier })

			if jsonOutput {
				printJSON(ContactsResult{Result: Result{OK: true}, Contacts: entries, Skipped: res.Skipped})
				return
			}
			for _, e := range entries {
				fmt.Printf("%-32s %s\n", e.Identifier, strings.TrimSpace(e.FirstName+" "+e.LastName))
			}
			if len(res.Skipped) > 0 {
				fmt.Printf("\n%d identifiers skipped\n", len(res.Skipped))
			}
		},
	}

	addRunFlags(cmd, &country, &backupDir)
	return cmd
}

// normalize command
func newNormalizeCmd() *cobra.Command {
	var country string

	cmd := &cobra.Command{
		Use:   "normalize <identifier>...",
		Short: "Print the canonical form of phone numbers and e-mail addresses",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Normalized struct {
				Input string `json:"input"`
				Key   string `json:"key,omitempty"`
				Error string `json:"error,omitempty"`
			}

			cfg, _ := setup()
			region := regionFor(cfg, country)

			out := make([]Normalized, 0, len(args))
			for _, raw := range args {
				key, err := normalize.Normalize(raw, region)
				n := Normalized{Input: raw, Key: key}
				if err != nil {
					n.Error = err.Error()
				}
				out = append(out, n)
			}

			if jsonOutput {
				printJSON(out)
				return
			}
			for _, n := range out {
				if n.Error != "" {
					fmt.Printf("%s\t(unparseable)\n", n.Input)
					continue
				}
				fmt.Printf("%s\t%s\n", n.Input, n.Key)
			}
		},
	}

	cmd.Flags().StringVarP(&country, "country", "c", "", countryHelp)
	return cmd
}

const countryHelp = `The country code to apply for phone numbers without one (defaults to US).
For example, 555-555-5555 will become +1 555-555-5555. Numbers with country
codes (eg. +49 17 555 55555) are unaffected.`

func addRunFlags(cmd *cobra.Command, country, backupDir *string) {
	cmd.Flags().StringVarP(country, "country", "c", "", countryHelp)
	cmd.Flags().StringVarP(backupDir, "backup-dir", "d", "", "Path to backup directory (if non-standard)")
}

// setup loads the config and installs the process logger.
func setup() (*config.Config, *slog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load config: %v", err)
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger
}

func regionFor(cfg *config.Config, flag string) string {
	region := cfg.Country
	if flag != "" {
		region = flag
	}
	if err := config.ValidateCountry(region); err != nil {
		fail("%v", err)
	}
	return region
}

func runOptions(cfg *config.Config, logger *slog.Logger, country, backupDir, deviceHash string) extract.Options {
	region := regionFor(cfg, country)

	root, err := cfg.ResolveBackupDir(backupDir)
	if err != nil {
		fail("%v", err)
	}
	dir, err := backup.Locate(root, deviceHash)
	if err != nil {
		fail("%v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		fail("%v", err)
	}

	return extract.Options{
		BackupDir: dir,
		Region:    region,
		Driver:    cfg.SQLiteDriver,
		Location:  loc,
		Logger:    logger,
	}
}

func fail(format string, args ...any) {
	result := Result{OK: false, Message: fmt.Sprintf(format, args...)}
	if jsonOutput {
		printJSON(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Message)
	}
	os.Exit(1)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
