package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/victorpuello/kampus-sub004/core/novelty"
	"github.com/victorpuello/kampus-sub004/core/user"
)

// login authenticates against the backend and persists the access token so
// subsequent commands reuse the session.
func (cli *commandLine) login(uname, pwd string) error {
	sess, err := cli.api.Login(context.Background(), uname, pwd)
	if err != nil {
		return err
	}
	if err = ioutil.WriteFile(tokenPathFunc(), []byte(sess.Token), 0600); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Logged in as %s (expires %s)\n", sess.Username, sess.ExpiresAt.Format("2006-01-02 15:04 MST"))
	return nil
}

func (cli *commandLine) listUsers(search string, roles []string) error {
	users, err := cli.api.Users(context.Background(), user.QueryFilter{Search: search, Roles: roles})
	if err != nil {
		return err
	}
	for _, usr := range users {
		active := "active"
		if !usr.IsActive {
			active = "inactive"
		}
		fmt.Fprintf(cli.out, "%d\t%s\t%s\t%s\t%s\n", usr.ID, usr.Username, usr.Name, strings.Join(usr.Roles, ","), active)
	}
	return nil
}

// addUser creates a user on the backend.
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if isAdmin {
		nu.Roles = user.AllRoles
	}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.api.CreateUser(context.Background(), nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Created user %d (%s)\n", usr.ID, usr.Username)
	return nil
}

func (cli *commandLine) listProcesses() error {
	procs, err := cli.api.Processes(context.Background())
	if err != nil {
		return err
	}
	for _, p := range procs {
		fmt.Fprintf(cli.out, "%d\t%s\t%s\t%s -> %s\n",
			p.ID, p.Name, p.Status,
			p.StartsAt.Format("2006-01-02 15:04"), p.EndsAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// fileNovelty creates, uploads and files a novelty case in one go.
func (cli *commandLine) fileNovelty(caseType string, studentID int, description string, attachments []string) error {
	uploads := make([]novelty.Upload, 0, len(attachments))
	for _, path := range attachments {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		uploads = append(uploads, novelty.Upload{Name: filepath.Base(path), Body: f})
	}

	nc := novelty.NewCase{Type: caseType, StudentID: studentID, Description: description}
	c, err := cli.cases.FileWithAttachments(context.Background(), nc, uploads)
	if err != nil {
		if c != nil {
			fmt.Fprintf(cli.out, "Case %d was created but not filed; resume with the backend admin.\n", c.ID)
		}
		return err
	}
	fmt.Fprintf(cli.out, "Filed case %d (%s, student %d, %d attachment(s))\n", c.ID, c.Type, c.StudentID, len(attachments))
	return nil
}
