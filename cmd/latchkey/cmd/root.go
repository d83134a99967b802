package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmcleod/latchkey/flow"
	"github.com/jmcleod/latchkey/session"
	bboltstorage "github.com/jmcleod/latchkey/storage/bbolt"
)

var (
	baseURL  string
	appID    string
	tenantID string
	dataDir  string
)

var rootCmd = &cobra.Command{
	Use:   "latchkey",
	Short: "Latchkey is a client for server-driven authentication",
	Long: `A command-line client for server-orchestrated authentication conversations:
login, registration, password recovery and token management.
Complete documentation is available at https://github.com/jmcleod/latchkey`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Authentication server base URL")
	rootCmd.PersistentFlags().StringVar(&appID, "app-id", "", "Application id registered with the server")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant-id", "", "Tenant to authenticate against")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "Directory for persistent session data")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./latchkey-data"
	}
	return filepath.Join(home, ".latchkey")
}

// newClient builds the engine over a durable bbolt session store. The
// returned closer must be called when done.
func newClient() (*flow.Client, func(), error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(dataDir, "session.db"), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
	}
	c, err := flow.New(flow.Config{
		BaseURL:       baseURL,
		ApplicationID: appID,
		TenantID:      tenantID,
	}, flow.WithStore(session.New(repo)))
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	return c, func() { _ = repo.Close() }, nil
}
