package banner

import (
	"fmt"

	"atelier/pkg/config"
)

const banner = `
 █████╗ ████████╗███████╗██╗     ██╗███████╗██████╗
██╔══██╗╚══██╔══╝██╔════╝██║     ██║██╔════╝██╔══██╗
███████║   ██║   █████╗  ██║     ██║█████╗  ██████╔╝
██╔══██║   ██║   ██╔══╝  ██║     ██║██╔══╝  ██╔══██╗
██║  ██║   ██║   ███████╗███████╗██║███████╗██║  ██║
╚═╝  ╚═╝   ╚═╝   ╚══════╝╚══════╝╚═╝╚══════╝╚═╝  ╚═╝
`

// PrintWithEff prints the startup banner with the effective config so
// ops can see at a glance what the process is running with.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s (%s)\n", eff.Addr, eff.AddrSource)
	fmt.Printf("DB Path:  %s (%s)\n", eff.DBPath, eff.DBSource)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if eff.Config != nil {
		if eff.Config.LLM.BaseURL != "" {
			fmt.Printf("LLM:      %s (%s)\n", eff.Config.LLM.BaseURL, eff.Config.LLM.Model)
		} else {
			fmt.Println("LLM:      not configured")
		}
		if eff.Config.Retrieval.EmbedURL != "" {
			fmt.Printf("Embed:    %s (%s)\n", eff.Config.Retrieval.EmbedURL, eff.Config.Retrieval.EmbedModel)
		}
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/turn                - Run a conversation turn (streams event frames)")
	fmt.Println("GET  /v1/agents              - List agent personas")
	fmt.Println("GET  /v1/history/{agent}     - Fetch a conversation transcript")
	fmt.Println("POST /v1/sources             - Upload a knowledge source")
	fmt.Println("POST /v1/projects            - Create a project workspace")
	fmt.Println("POST /v1/tools/export_pdf    - Export content to PDF")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -N -X POST 'http://localhost%s/v1/turn' -d '{\"agent\":\"writer\",\"message\":\"hello\"}'\n", portSuffix(eff.Addr))
}

func portSuffix(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i:]
		}
	}
	return addr
}
