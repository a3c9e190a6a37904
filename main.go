package main

import "github.com/liweiyi88/pgbackup/cmd"

func main() {
	cmd.Execute()
}
