package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/victorpuello/kampus-sub004/core/live"
	"github.com/victorpuello/kampus-sub004/core/novelty"
	"github.com/victorpuello/kampus-sub004/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	tokenPathFunc    = defaultTokenPath  // mockable

	errHelp = errors.New("help provided")
)

// adminAPI is the slice of the Kampus client the CLI needs.
type adminAPI interface {
	Login(ctx context.Context, username, password string) (user.Session, error)
	SetSession(sess user.Session)
	Users(ctx context.Context, filter user.QueryFilter) ([]user.User, error)
	CreateUser(ctx context.Context, nu user.NewUser) (*user.User, error)
	Processes(ctx context.Context) ([]live.Process, error)
}

type commandLine struct {
	api      adminAPI
	cases    *novelty.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -username USERNAME - log in to the Kampus API; the password is prompted next")
	fmt.Fprintln(cli.out, "  users [-search TEXT] [-role ROLE] - list backend users")
	fmt.Fprintln(cli.out, "  adduser -name NAME [-username USERNAME] [-email EMAIL] [-admin] - create a user; the password is prompted next")
	fmt.Fprintln(cli.out, "  processes - list election processes eligible for monitoring")
	fmt.Fprintln(cli.out, "  novelty-file -type TYPE -student ID -description TEXT [-attach FILE ...] - file a novelty case")
}

// stringSliceFlag collects a repeated flag's values.
type stringSliceFlag []string

func (f *stringSliceFlag) String() string { return fmt.Sprint([]string(*f)) }

func (f *stringSliceFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	loginCmd := flag.NewFlagSet("login", flag.ExitOnError)
	loginUname := loginCmd.String("username", "", "The username to log in with. The password will be prompted next.")

	usersCmd := flag.NewFlagSet("users", flag.ExitOnError)
	usersSearch := usersCmd.String("search", "", "Filter users on name, username or email.")
	var usersRoles stringSliceFlag
	usersCmd.Var(&usersRoles, "role", "Filter users on role. May be repeated.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant all admin roles.")

	noveltyCmd := flag.NewFlagSet("novelty-file", flag.ExitOnError)
	noveltyType := noveltyCmd.String("type", "", "The case type: enrollment, transfer, withdrawal or correction.")
	noveltyStudent := noveltyCmd.Int("student", 0, "The student's ID.")
	noveltyDesc := noveltyCmd.String("description", "", "What happened and what should change.")
	var noveltyAttach stringSliceFlag
	noveltyCmd.Var(&noveltyAttach, "attach", "A file to attach. May be repeated.")

	switch args[1] {
	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loginUname == "" {
			loginCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(*loginUname, string(pwd))
	case "users":
		if err := usersCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listUsers(*usersSearch, usersRoles)
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, string(pwd), *addUserAdmin)
	case "processes":
		return cli.listProcesses()
	case "novelty-file":
		if err := noveltyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *noveltyType == "" || *noveltyStudent == 0 || *noveltyDesc == "" {
			noveltyCmd.Usage()
			return errHelp
		}
		return cli.fileNovelty(*noveltyType, *noveltyStudent, *noveltyDesc, noveltyAttach)
	default:
		cli.printUsage()
		return errHelp
	}
}
