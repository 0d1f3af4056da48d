package launchd

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/breeze-rmm/adm/internal/executor"
)

// DirectoryBinary is the Directory Service command line utility.
const DirectoryBinary = "/usr/bin/dscl"

// firstInteractiveUID is where macOS starts numbering login accounts.
const firstInteractiveUID = 500

// Account is a local directory-service user.
type Account struct {
	Name string
	UID  UID
}

// Salient reports whether the account is an interactive login account
// rather than a service account.
func (a Account) Salient() bool {
	return !strings.HasPrefix(a.Name, "_") && a.UID >= firstInteractiveUID
}

// Accounts lists local users from `dscl . -list /Users UniqueID`.
func Accounts(ctx context.Context, runner executor.Runner) ([]Account, error) {
	res, err := runner.Run(ctx, DirectoryBinary, []string{".", "-list", "/Users", "UniqueID"}, executor.CurrentUser())
	if err != nil {
		return nil, &Error{Kind: KindIO, Op: "dscl list", Err: err}
	}
	if res.ExitCode != 0 {
		return nil, &Error{Kind: KindIO, Op: "dscl list", Err: fmt.Errorf("exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))}
	}
	return parseAccounts(res.Stdout), nil
}

func parseAccounts(out string) []Account {
	var accounts []Account
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		// nobody and friends carry negative ids
		uid, err := strconv.ParseUint(fields[len(fields)-1], 10, 32)
		if err != nil {
			continue
		}
		accounts = append(accounts, Account{Name: fields[0], UID: UID(uid)})
	}
	return accounts
}

// SystemUIDs returns the uid of every local account.
func SystemUIDs(ctx context.Context, runner executor.Runner) ([]UID, error) {
	accounts, err := Accounts(ctx, runner)
	if err != nil {
		return nil, err
	}
	return uniqueUIDs(accounts, func(Account) bool { return true }), nil
}

// SalientSystemUIDs returns the uids of interactive login accounts.
func SalientSystemUIDs(ctx context.Context, runner executor.Runner) ([]UID, error) {
	accounts, err := Accounts(ctx, runner)
	if err != nil {
		return nil, err
	}
	return uniqueUIDs(accounts, Account.Salient), nil
}

func uniqueUIDs(accounts []Account, keep func(Account) bool) []UID {
	seen := make(map[UID]bool, len(accounts))
	var uids []UID
	for _, a := range accounts {
		if !keep(a) || seen[a.UID] {
			continue
		}
		seen[a.UID] = true
		uids = append(uids, a.UID)
	}
	return uids
}
