package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mwojnars/ringdb"
)

var rootCmd = &cobra.Command{
	Use:   "ringdb",
	Short: "Inspect and edit a ringdb ring stack",
	Long: `ringdb operates on a stack of storage rings described by a configuration
file. The configuration can also be set via environment variables with the
RINGDB_ prefix (e.g. RINGDB_CONFIG=./stack.yaml).`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "ringdb.yaml", "ring stack configuration file")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(infoCmd, getCmd, insertCmd, updateCmd, deleteCmd, scanCmd, flushCmd)
}

func initConfig() {
	godotenv.Load()
	viper.SetEnvPrefix("ringdb")
	viper.AutomaticEnv()
	viper.BindPFlags(rootCmd.PersistentFlags())
}

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// cliSchema is the schema-agnostic view the CLI uses: records keyed by a
// single uint id, payload fields untyped.
func cliSchema() *ringdb.Schema {
	key := ringdb.NewKeySchema(ringdb.Field{Name: "id", Kind: ringdb.KindUint})
	return ringdb.NewSchema(ringdb.NewRecordSchema(key))
}

func openDB() (*ringdb.DB, *zap.Logger, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := ringdb.LoadConfig(viper.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	db, err := ringdb.Open(cfg, cliSchema(), ringdb.Options{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return db, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
