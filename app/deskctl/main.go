package main

import "github.com/yoockh/helpdesk/app/deskctl/cmd"

func main() {
	cmd.Execute()
}
