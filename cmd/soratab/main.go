package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/stringutils"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"
	_ "modernc.org/sqlite" // sqlite driver and vtab hook
	"modernc.org/sqlite/vtab"

	"github.com/soratab/soratab/pkg/config"
	"github.com/soratab/soratab/pkg/secrets"
	"github.com/soratab/soratab/pkg/soracom"
	"github.com/soratab/soratab/pkg/vtable"
)

type options struct {
	Device   string `short:"d" long:"device" env:"SORATAB_DEVICE" description:"device imsi, or alias from the settings file"`
	Coverage string `long:"coverage" env:"SORATAB_COVERAGE" description:"coverage, global or japan"`
	From     int64  `long:"from" description:"start of the search range, unix time in milliseconds"`
	To       int64  `long:"to" description:"end of the search range, unix time in milliseconds"`
	Limit    uint32 `long:"limit" description:"max number of entries to retrieve, 1..1000"`

	SettingsFile string `long:"settings" env:"SORATAB_SETTINGS" default:"soratab.yml" description:"settings file"`

	SecretsProvider SecretsProvider `group:"secrets" namespace:"secrets" env-namespace:"SORATAB_SECRETS"`

	QueryCmd struct {
		PositionalArgs struct {
			SQL string `positional-arg-name:"sql" description:"sql to run over the harvest_data table"`
		} `positional-args:"yes" positional-optional:"yes"`
		DB   string `long:"db" default:":memory:" description:"sqlite database to attach the virtual table to"`
		Wide bool   `long:"wide" description:"don't truncate wide values"`
	} `command:"query" description:"query harvest data through a sqlite virtual table"`

	DelCmd struct {
		PositionalArgs struct {
			Time int64 `positional-arg-name:"time" description:"timestamp of the entry to delete, unix time in milliseconds"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"del" description:"delete a single harvest data entry"`

	SecretCmd struct {
		PositionalArgs struct {
			Action string `positional-arg-name:"action" description:"set, get, del or list"`
			Key    string `positional-arg-name:"key" description:"secret key, or key prefix for list"`
			Value  string `positional-arg-name:"value" description:"secret value, set only"`
		} `positional-args:"yes" positional-optional:"yes"`
	} `command:"secret" description:"manage the encrypted credentials store"`

	Dbg bool `long:"dbg" description:"debug mode"`
}

// SecretsProvider defines credential source options, for all supported providers
type SecretsProvider struct {
	Provider string `long:"provider" env:"PROVIDER" description:"credentials source" choice:"env" choice:"db" choice:"vault" choice:"aws" choice:"ansible-vault" default:"env"`

	Key  string `long:"key" env:"KEY" description:"secure key for the db credentials source"`
	Conn string `long:"conn" env:"CONN" description:"connection string for the db credentials source" default:"soratab.db"`

	Vault struct {
		Token string `long:"token" env:"TOKEN" description:"vault token"`
		Path  string `long:"path"  env:"PATH" description:"vault path"`
		URL   string `long:"url" env:"URL" description:"vault url"`
	} `group:"vault" namespace:"vault" env-namespace:"VAULT"`

	Aws struct {
		Region    string `long:"region" env:"REGION" description:"aws region"`
		AccessKey string `long:"access-key" env:"ACCESS_KEY" description:"aws access key"`
		SecretKey string `long:"secret-key" env:"SECRET_KEY" description:"aws secret key"`
	} `group:"aws" namespace:"aws" env-namespace:"AWS"`

	Ansible struct {
		Path   string `long:"path" env:"PATH" description:"ansible-vault file"`
		Secret string `long:"secret" env:"SECRET" description:"ansible-vault password"`
	} `group:"ansible" namespace:"ansible" env-namespace:"ANSIBLE"`
}

var revision = "latest"

func main() {
	fmt.Printf("soratab %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	setupLog(opts.Dbg)

	command := ""
	if p.Active != nil {
		command = p.Active.Name
	}

	if err := run(command, opts); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Printf("failed: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, opts options) error {
	if command == "secret" {
		return runSecret(opts) // store management needs no device or remote access
	}

	settings, err := config.Load(opts.SettingsFile)
	if err != nil {
		return fmt.Errorf("can't load settings: %w", err)
	}

	coverage := opts.Coverage
	if coverage == "" {
		coverage = settings.Coverage
	}
	if !stringutils.Contains(strings.ToLower(coverage), []string{"", "g", "global", "jp", "japan"}) {
		return fmt.Errorf("unknown coverage %q, should be global or japan", coverage)
	}

	limit := opts.Limit
	if limit == 0 {
		limit = settings.Limit
	}

	imsi := settings.ResolveIMSI(opts.Device)
	if imsi == "" {
		return fmt.Errorf("no device provided, set --device")
	}

	provider, err := makeSecretsProvider(opts.SecretsProvider)
	if err != nil {
		return fmt.Errorf("can't make secrets provider: %w", err)
	}
	creds, err := secrets.Credentials(provider)
	if err != nil {
		return fmt.Errorf("can't resolve credentials: %w", err)
	}
	lgr.Setup(lgr.Secret(creds.AuthKeySecret)) // mask the secret in logs

	switch command {
	case "query":
		return runQuery(opts, creds, imsi, coverage, limit)
	case "del":
		return runDelete(opts, creds, imsi, coverage)
	}
	return fmt.Errorf("no command specified, use query, del or secret")
}

func runSecret(opts options) error {
	key := opts.SecretsProvider.Key
	if key == "" {
		var err error
		if key, err = readSecretKey(); err != nil {
			return err
		}
	}
	sp, err := secrets.NewInternalProvider(opts.SecretsProvider.Conn, []byte(key))
	if err != nil {
		return fmt.Errorf("can't create secrets provider: %w", err)
	}

	args := opts.SecretCmd.PositionalArgs
	switch args.Action {
	case "set":
		if args.Value == "" {
			return fmt.Errorf("can't set empty secret for key %q", args.Key)
		}
		if err = sp.Set(args.Key, args.Value); err != nil {
			return fmt.Errorf("can't set secret for key %q: %w", args.Key, err)
		}
		log.Printf("[INFO] key=%s set", args.Key)
	case "get":
		val, getErr := sp.Get(args.Key)
		if getErr != nil {
			return fmt.Errorf("can't get secret for key %q: %w", args.Key, getErr)
		}
		fmt.Println(val)
	case "del":
		if err = sp.Delete(args.Key); err != nil {
			return fmt.Errorf("can't delete secret for key %q: %w", args.Key, err)
		}
		log.Printf("[INFO] key=%s deleted", args.Key)
	case "list":
		prefix := args.Key
		if prefix == "" {
			prefix = "*"
		}
		keys, listErr := sp.List(prefix)
		if listErr != nil {
			return fmt.Errorf("can't list secrets: %w", listErr)
		}
		for _, k := range keys {
			fmt.Println(k)
		}
	default:
		return fmt.Errorf("unknown secret action %q, use set, get, del or list", args.Action)
	}
	return nil
}

func runQuery(opts options, creds soracom.Credentials, imsi, coverage string, limit uint32) error {
	db, err := sql.Open("sqlite", opts.QueryCmd.DB)
	if err != nil {
		return fmt.Errorf("can't open database %s: %w", opts.QueryCmd.DB, err)
	}
	defer db.Close()

	if err = vtab.RegisterModule(db, vtable.DefaultModuleName, vtable.NewModule(creds)); err != nil {
		return fmt.Errorf("can't register harvest module: %w", err)
	}

	ddl := buildCreateTable(imsi, coverage, opts.From, opts.To, limit)
	log.Printf("[DEBUG] %s", ddl)
	if _, err = db.Exec(ddl); err != nil {
		return fmt.Errorf("can't create virtual table: %w", err)
	}

	query := opts.QueryCmd.PositionalArgs.SQL
	if query == "" {
		query = "SELECT time, content_type, value FROM harvest_data"
	}
	rows, err := db.Query(query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return printRows(os.Stdout, rows, opts.QueryCmd.Wide)
}

func runDelete(opts options, creds soracom.Credentials, imsi, coverage string) error {
	client := soracom.NewClient(creds, soracom.ParseEndpoint(coverage))
	ctx := context.Background()
	if err := client.Auth(ctx); err != nil {
		return fmt.Errorf("can't authenticate: %w", err)
	}
	tm := opts.DelCmd.PositionalArgs.Time
	if err := client.DeleteDataEntry(ctx, imsi, tm); err != nil {
		return fmt.Errorf("can't delete entry %d: %w", tm, err)
	}
	fmt.Printf("deleted entry %d for %s\n", tm, imsi)
	return nil
}

// buildCreateTable makes the CREATE VIRTUAL TABLE statement from the
// resolved options, leaving out everything unset so the module defaults
// apply.
func buildCreateTable(imsi, coverage string, from, to int64, limit uint32) string {
	args := []string{fmt.Sprintf("IMSI '%s'", imsi)}
	if coverage != "" {
		args = append(args, fmt.Sprintf("COVERAGE '%s'", coverage))
	}
	if from != 0 {
		args = append(args, fmt.Sprintf("FROM '%d'", from))
	}
	if to != 0 {
		args = append(args, fmt.Sprintf("TO '%d'", to))
	}
	if limit != 0 {
		args = append(args, fmt.Sprintf("LIMIT '%d'", limit))
	}
	return fmt.Sprintf("CREATE VIRTUAL TABLE harvest_data USING %s(%s)", vtable.DefaultModuleName, strings.Join(args, ", "))
}

// printRows writes the result set as a simple table, header colorized,
// values truncated unless wide is requested.
func printRows(w io.Writer, rows *sql.Rows, wide bool) error {
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("can't get result columns: %w", err)
	}

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = color.New(color.FgCyan).Sprint(c)
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	count := 0
	for rows.Next() {
		if err = rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("can't scan result row: %w", err)
		}
		cells := make([]string, len(cols))
		for i, v := range vals {
			cells[i] = cellString(v)
			if !wide {
				cells[i] = stringutils.Truncate(cells[i], 64)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
		count++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("can't read result rows: %w", err)
	}
	log.Printf("[INFO] %d rows", count)
	return nil
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// makeSecretsProvider creates the credentials source based on options
func makeSecretsProvider(sopts SecretsProvider) (secrets.Provider, error) {
	switch sopts.Provider {
	case "env":
		return &secrets.EnvProvider{}, nil
	case "db":
		key := sopts.Key
		if key == "" {
			var err error
			if key, err = readSecretKey(); err != nil {
				return nil, err
			}
		}
		return secrets.NewInternalProvider(sopts.Conn, []byte(key))
	case "vault":
		return secrets.NewHashiVaultProvider(sopts.Vault.URL, sopts.Vault.Path, sopts.Vault.Token)
	case "aws":
		return secrets.NewAWSSecretsProvider(sopts.Aws.AccessKey, sopts.Aws.SecretKey, sopts.Aws.Region)
	case "ansible-vault":
		return secrets.NewAnsibleVaultProvider(sopts.Ansible.Path, sopts.Ansible.Secret)
	}
	log.Printf("[WARN] unknown secrets provider %q", sopts.Provider)
	return &secrets.NoOpProvider{}, nil
}

// readSecretKey prompts for the db source key without echoing it back
func readSecretKey() (string, error) {
	fmt.Print("secrets key: ")
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("can't read secrets key: %w", err)
	}
	return strings.TrimSpace(string(key)), nil
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)} // default to discard
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
