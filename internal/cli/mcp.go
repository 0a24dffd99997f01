package cli

import (
	"encoding/json"
	"fmt"
	"os"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/svd-classify/internal/config"
	"github.com/svd-classify/internal/domain"
	"github.com/svd-classify/internal/mcp"
)

// clientConfig is the "mcpServers" block understood by desktop MCP clients.
type clientConfig struct {
	MCPServers map[string]clientServer `json:"mcpServers"`
}

type clientServer struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

func getMCPCmd() *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server over stdio",
		Long: `MCP starts a Model Context Protocol server over stdin/stdout on the lite
stack. Assistants can list guidelines, preview scores and query the worklist;
they cannot change a classification.

Logs go to stderr so that stdout carries only protocol messages.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lite := config.LoadLiteConfig()
			st, err := newLiteStack(lite)
			if err != nil {
				return err
			}
			defer st.close()

			srv := mcp.NewServer(domain.MCPConfig{ServerName: "svd-classify", ServerVersion: Version}, st.service, st.registry, st.logger)
			return srv.Run(cmd.Context(), &sdkmcp.StdioTransport{})
		},
	}
	mcpCmd.AddCommand(getMCPClientConfigCmd())
	return mcpCmd
}

func getMCPClientConfigCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "client-config",
		Short: "Print the MCP client configuration for this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locating executable: %w", err)
			}
			server := clientServer{Command: exe, Args: []string{"mcp"}}
			if dataDir != "" {
				server.Env = map[string]string{"SVD_DATA_DIR": dataDir}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(clientConfig{MCPServers: map[string]clientServer{"svd-classify": server}})
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory passed to the server as SVD_DATA_DIR")
	return cmd
}
