package cli

import (
	"fmt"

	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/spf13/cobra"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Work with question templates",
	Long: `Work with question templates.

A template is a question with exactly one {object} placeholder that is
replaced by each entity.

Subcommands:
  check   Validate a template and show a sample rendering

Examples:
  enrichr template check "What country is {object} headquartered in?"
  enrichr template check --instruction "number of employees"`,
}

var templateCheckCmd = &cobra.Command{
	Use:   "check <template>",
	Short: "Validate a template and show a sample rendering",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateCheck,
}

var (
	templateEntity      string
	templateInstruction bool
)

func init() {
	templateCheckCmd.Flags().StringVarP(&templateEntity, "entity", "e", "Acme Corp", "sample entity to render")
	templateCheckCmd.Flags().BoolVar(&templateInstruction, "instruction", false, "treat the argument as a free-form instruction")

	templateCmd.AddCommand(templateCheckCmd)
}

func runTemplateCheck(cmd *cobra.Command, args []string) error {
	var tmpl models.PromptTemplate
	var err error
	if templateInstruction {
		tmpl, err = models.InstructionTemplate(args[0])
	} else {
		tmpl, err = models.ParseTemplate(args[0])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ valid template\n")
	fmt.Fprintf(out, "  query: %s\n", tmpl.Render(templateEntity))
	return nil
}
