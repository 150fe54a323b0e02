package memorycmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/engine"
	"github.com/papercomputeco/strata/pkg/logger"
)

// localFlags are the storage flags honoured by --local runs.
var localFlags = []string{
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagAuditProvider,
	config.FlagAuditSQLite,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
}

// options are shared by every memory subcommand.
type options struct {
	apiTarget string
	local     bool
	jsonOut   bool

	configDir string
	debug     bool

	storageProvider string
	sqlitePath      string
	postgresDSN     string
	auditProvider   string
	auditSQLitePath string
	vectorProvider  string
	vectorTarget    string

	cfg    *config.Config
	out    io.Writer
	logger *slog.Logger
}

func (o *options) addFlags(cmd *cobra.Command) {
	fs := config.Flags
	config.AddStringFlag(cmd, fs, config.FlagAPITarget, &o.apiTarget)
	config.AddStringFlag(cmd, fs, config.FlagStorageProvider, &o.storageProvider)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &o.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &o.postgresDSN)
	config.AddStringFlag(cmd, fs, config.FlagAuditProvider, &o.auditProvider)
	config.AddStringFlag(cmd, fs, config.FlagAuditSQLite, &o.auditSQLitePath)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreProv, &o.vectorProvider)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreTgt, &o.vectorTarget)

	cmd.Flags().BoolVar(&o.local, "local", false, "Open the configured storage and run in this process instead of calling the API")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "Print the raw JSON document")
}

// prepare resolves configuration. The API target comes from --api-target
// when given, else from client.api_target.
func (o *options) prepare(cmd *cobra.Command) error {
	o.configDir, _ = cmd.Flags().GetString("config-dir")
	o.debug, _ = cmd.Flags().GetBool("debug")
	o.out = cmd.OutOrStdout()

	v, err := config.InitViper(o.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, append([]string{config.FlagAPITarget}, localFlags...))

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	o.cfg = cfg
	o.apiTarget = cfg.Client.APITarget

	// --local runs stay quiet unless --debug is set.
	o.logger = logger.Nop()
	if o.debug {
		o.logger = logger.New(
			logger.WithDebug(true),
			logger.WithPretty(true),
			logger.WithComponent("cli"),
			logger.WithWriter(cmd.ErrOrStderr()),
		)
	}
	return nil
}

func (o *options) client() *apiClient {
	return newAPIClient(o.apiTarget)
}

// openEngine assembles an engine over the configured storage. The caller
// closes it.
func (o *options) openEngine(ctx context.Context) (*engine.Engine, error) {
	dataDir, err := dotdir.NewManager().Target(o.configDir)
	if err != nil {
		return nil, err
	}
	return engine.New(ctx, o.cfg, engine.Options{
		DataDir: dataDir,
		Logger:  o.logger,
	})
}

// printJSON writes v indented.
func (o *options) printJSON(v any) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
