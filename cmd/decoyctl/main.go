// Command decoyctl is the operator CLI for a DecoyVerse backend: account
// login, node management, alert triage, and agent-bundle download.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/decoyverse/decoyverse/pkg/client"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	backendURL string
	cfgFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "decoyctl",
	Short: "DecoyVerse operator CLI",
	Long: `decoyctl is the command-line interface for a DecoyVerse backend.

It manages your account, nodes, and alerts, and downloads per-node agent
bundles.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".decoyverse"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if backendURL == "" {
			backendURL = viper.GetString("backend_url")
		}
		if backendURL == "" {
			backendURL = "http://localhost:8001"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.decoyverse/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "backend URL (default http://localhost:8001)")

	nodesCmd.AddCommand(nodesListCmd, nodesCreateCmd, nodesDeleteCmd, nodesBundleCmd)
	rootCmd.AddCommand(loginCmd, registerCmd, nodesCmd, alertsCmd, statsCmd, versionCmd)
}

// newClient builds an SDK client carrying the saved session token.
func newClient() *client.Client {
	c := client.New(backendURL)
	if tok := viper.GetString("token"); tok != "" {
		c.SetToken(tok)
	}
	return c
}

// saveToken persists the session token to the config file.
func saveToken(token string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, ".decoyverse")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	viper.Set("token", token)
	viper.Set("backend_url", backendURL)
	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// ── auth ─────────────────────────────────────────────────────────────────

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		c := newClient()
		u, err := c.Register(context.Background(), args[0], password)
		if err != nil {
			return err
		}
		if err := saveToken(c.Token()); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Printf("registered %s (%s)\n", u.Email, u.ID)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate and save a session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		c := newClient()
		u, err := c.Login(context.Background(), args[0], password)
		if err != nil {
			return err
		}
		if err := saveToken(c.Token()); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Printf("logged in as %s\n", u.Email)
		return nil
	},
}

func readPassword() (string, error) {
	if p := os.Getenv("DECOYVERSE_PASSWORD"); p != "" {
		return p, nil
	}
	fmt.Fprint(os.Stderr, "password: ")
	var p string
	if _, err := fmt.Scanln(&p); err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return p, nil
}

// ── nodes ────────────────────────────────────────────────────────────────

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Manage nodes",
}

var nodesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newClient().ListNodes(context.Background())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NODE ID\tNAME\tSTATUS\tLAST SEEN")
		for _, n := range list {
			lastSeen := "never"
			if n.LastSeen != nil {
				lastSeen = n.LastSeen.Local().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.NodeID, n.Name, n.Status, lastSeen)
		}
		return w.Flush()
	},
}

var nodesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a node and print its one-shot credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newClient().CreateNode(context.Background(), args[0])
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(n, "", "  ")
		fmt.Println(string(out))
		fmt.Fprintln(os.Stderr, "note: node_api_key is shown only once; it is not retrievable later")
		return nil
	},
}

var nodesDeleteCmd = &cobra.Command{
	Use:   "delete <node-id>",
	Short: "Delete a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteNode(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil
	},
}

var nodesBundleCmd = &cobra.Command{
	Use:   "bundle <node-id>",
	Short: "Download the agent bundle (reissues the node credential)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newClient().DownloadBundle(context.Background(), args[0])
		if err != nil {
			return err
		}
		name := fmt.Sprintf("agent-%s.zip", args[0])
		if err := os.WriteFile(name, data, 0o600); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", name, len(data))
		return nil
	},
}

// ── alerts / stats ───────────────────────────────────────────────────────

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		list, err := newClient().ListAlerts(context.Background(), limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSOURCE\tATTACK\tRISK\tSEVERITY\tSTATUS")
		for _, a := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				a.Timestamp.Local().Format("2006-01-02 15:04"),
				a.SourceIP, a.AttackType, a.RiskScore, a.Severity, a.Status)
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dashboard statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient().GetStats(context.Background())
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(s, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the decoyctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	alertsCmd.Flags().Int("limit", 20, "maximum alerts to list")
}
