package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmcleod/latchkey/flow"
	"github.com/jmcleod/latchkey/protocol"
)

// runCredentialFlow drives a full login or registration conversation on the
// terminal: setup, credential prompts, the verifier exchange, and an
// external-provider hand-off when the server requests one.
func runCredentialFlow(ctx context.Context, c *flow.Client, kind flow.Flow, username, password string) error {
	msg, err := c.Setup(ctx, kind, flow.SetupOptions{})
	if err != nil {
		return err
	}

	formID := ""
	switch msg.Type {
	case protocol.TypeFail:
		return printFail(msg)
	case protocol.TypeForm:
		formID = msg.ID
	case protocol.TypeLogical:
		for _, opt := range msg.Opts {
			if opt.Type == protocol.TypeForm {
				formID = opt.ID
				break
			}
		}
	case protocol.TypeOIDC:
		return completeHandoff(ctx, c, msg)
	default:
		return fmt.Errorf("cannot continue from %q message", msg.Type)
	}

	if username == "" {
		if username, err = prompt("Username"); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = prompt("Password"); err != nil {
			return err
		}
	}

	creds := flow.Credentials{FormID: formID, Username: username, Password: password}
	var res *flow.Result
	if kind == flow.FlowRegister {
		res, err = c.Register(ctx, creds, nil)
	} else {
		res, err = c.Login(ctx, creds, nil)
	}
	if err != nil {
		return err
	}
	return report(ctx, c, res)
}

// report prints the outcome of a completed step, following an external
// hand-off to its end when necessary.
func report(ctx context.Context, c *flow.Client, res *flow.Result) error {
	switch {
	case res.RedirectURL != "":
		fmt.Printf("Authorization granted. Continue at:\n  %s\n", res.RedirectURL)
		return nil
	case res.Message.Type == protocol.TypeOIDC:
		return completeHandoff(ctx, c, res.Message)
	case res.Message.Type == protocol.TypeFail:
		return printFail(res.Message)
	case res.Message.Type == protocol.TypeSuccess:
		fmt.Printf("Signed in as %s\n", res.Message.Sub)
		return nil
	default:
		return fmt.Errorf("conversation stopped at %q message", res.Message.Type)
	}
}

// completeHandoff walks the user through an external identity provider:
// a loopback server catches the provider redirect, then the conversation
// is closed locally.
func completeHandoff(ctx context.Context, c *flow.Client, msg *protocol.Message) error {
	cb := flow.NewCallbackServer("")
	cbURL, err := cb.Start()
	if err != nil {
		return err
	}
	defer cb.Stop()

	providerURL, err := c.BeginOIDC(msg)
	if err != nil {
		return err
	}
	fmt.Printf("Open the following URL in your browser to continue:\n  %s\n", providerURL)
	fmt.Printf("Waiting for the provider to redirect to %s ...\n", cbURL)

	result, err := cb.Wait(ctx)
	if err != nil {
		return err
	}
	if result.Error != "" {
		return fmt.Errorf("provider returned an error: %s", result.Error)
	}

	res, err := c.CompleteOIDC(ctx, result.ThreadID, nil)
	if err != nil {
		return err
	}
	return report(ctx, c, res)
}

func printFail(msg *protocol.Message) error {
	if msg.Err != nil {
		if msg.Err.Msg != "" {
			return fmt.Errorf("%s: %s", msg.Err.Code, msg.Err.Msg)
		}
		return fmt.Errorf("%s", msg.Err.Code)
	}
	return fmt.Errorf("request rejected")
}

func prompt(label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
