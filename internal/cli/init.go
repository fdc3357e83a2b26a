package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new moat project",
	Long:  `Creates the state directory and a starter configuration file.`,
	RunE:  runInit,
}

const starterConfig = `// Moat configuration

resources {
  new {
    type = "aws:EC2.Vpc"
    name = "main"
    provider = "aws"
    properties {
      ["cidrBlock"] = "10.0.0.0/16"
      ["tags"] { ["Name"] = "main" }
    }
  }
}
`

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", stateDir, err)
	}

	if _, err := os.Stat("main.pkl"); os.IsNotExist(err) {
		if err := os.WriteFile("main.pkl", []byte(starterConfig), 0644); err != nil {
			return fmt.Errorf("failed to write main.pkl: %w", err)
		}
		fmt.Println("Created main.pkl")
	} else {
		fmt.Println("main.pkl already exists, leaving it alone")
	}

	fmt.Println("Project initialized. Run 'moat plan' to see what would change.")
	return nil
}
