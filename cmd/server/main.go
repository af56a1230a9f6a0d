// Command backoffice runs the catering back-office API server, its scheduled
// maintenance jobs and the account administration commands.
package main

import (
	"context"
	"os"

	"github.com/cateringhub/backoffice/internal/server/cli"
)

func main() {

	ctx := context.Background()

	code := cli.Execute(ctx, os.Args[1:], cli.IO{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr})

	os.Exit(code)

}
