package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hspbot/hspbot/auth"
	"github.com/hspbot/hspbot/errors"
)

// TokenCmd manages the stored auth credential
var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Import and inspect the auth credential",
}

var tokenImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a browser token export (tokenResponse + member)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenImport,
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored credential and its remaining validity",
	RunE:  runTokenShow,
}

func init() {
	TokenCmd.AddCommand(tokenImportCmd)
	TokenCmd.AddCommand(tokenShowCmd)
}

func runTokenImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}

	var bundle auth.ImportBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return errors.Wrap(err, "file is not a valid token export")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}

	cred, err := a.auth.Import(bundle)
	if err != nil {
		return err
	}

	id, email, name := cred.MemberInfo()
	pterm.Success.Printfln("Imported credential for %s <%s> (member %d)", name, email, id)
	return nil
}

func runTokenShow(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	cred, info, err := a.auth.TokenStatus()
	if err != nil {
		return err
	}
	if cred.AccessToken == "" {
		pterm.Warning.Println("No credential stored. Import one with 'hspbot token import <file>'.")
		return nil
	}

	id, email, name := cred.MemberInfo()
	fmt.Printf("Member:     %s <%s> (id %d)\n", name, email, id)
	if info != nil {
		fmt.Printf("Expires at: %s\n", info.ExpiresAt.Local().Format(time.RFC1123))
		if info.Valid {
			pterm.Success.Printfln("Token valid for another %s", info.Remaining.Round(time.Second))
		} else {
			pterm.Warning.Println("Token expired or inside the refresh margin; it will be refreshed on next use")
		}
	}
	return nil
}
