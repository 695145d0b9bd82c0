package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fueltrack/internal/common"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
	"github.com/dmitrijs2005/fueltrack/internal/store"
)

// setup creates the device's local-only user; everything works offline
// from then on, login later links the data to a remote account.
func (a *App) setup(ctx context.Context) {
	if _, err := a.coord.DeviceUser(ctx); err == nil {
		fmt.Fprintln(a.out, "This device is already set up.")
		return
	}

	name, err := GetSimpleText(a.reader, "Your name", a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	email, err := GetSimpleText(a.reader, "Your email", a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}

	mask, err := a.coord.NewLocalUser(ctx, &model.User{Name: name, Email: email})
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if mask != 0 {
		a.printUserIssues(mask)
		return
	}
	fmt.Fprintln(a.out, "Device set up. Use 'login' to link a remote account.")
}

func (a *App) printUserIssues(mask model.SaveUserErr) {
	if mask&model.SaveUserNameNotProvided != 0 {
		fmt.Fprintln(a.out, "- name is required")
	}
	if mask&model.SaveUserEmailNotProvided != 0 {
		fmt.Fprintln(a.out, "- email is required")
	}
	if mask&model.SaveUserInvalidEmail != 0 {
		fmt.Fprintln(a.out, "- email does not look valid")
	}
}

func (a *App) login(ctx context.Context) {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	password, err := GetPassword(a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	defer common.WipeByteArray(password)

	out, err := a.coord.Login(ctx, email, string(password))
	if err != nil {
		fmt.Fprintln(a.out, "Login failed:", err)
		return
	}
	switch out {
	case remote.OutcomeSuccess:
		fmt.Fprintln(a.out, "Login successful.")
		a.resync(ctx)
	case remote.OutcomeAuthRequired:
		fmt.Fprintln(a.out, "Invalid credentials.")
	default:
		fmt.Fprintf(a.out, "Login did not succeed: %s\n", out)
	}
}

func (a *App) logout(ctx context.Context) {
	if _, err := a.coord.Logout(ctx); err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintln(a.out, "Logged out. Local data stays linked to the account.")
}

// reset unlinks the replica from the remote account after confirmation.
func (a *App) reset(ctx context.Context) {
	answer, err := GetSimpleText(a.reader,
		"This unlinks all local data from the remote account. Type 'yes' to continue", a.out)
	if err != nil || answer != "yes" {
		fmt.Fprintln(a.out, "Cancelled.")
		return
	}
	if err := a.coord.ResetAsLocalUser(ctx); err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintln(a.out, "Replica reset to local-only state.")
}

// deviceUserOrPrompt loads the device user, nudging towards 'setup' when
// the device was never initialized.
func (a *App) deviceUserOrPrompt(ctx context.Context) (*model.User, bool) {
	u, err := a.coord.DeviceUser(ctx)
	if err != nil {
		if store.IsNotFound(err) {
			fmt.Fprintln(a.out, "Run 'setup' first.")
		} else {
			fmt.Fprintln(a.out, "error:", err)
		}
		return nil, false
	}
	return u, true
}
