/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/eventdesk/accounts/cmd"

func main() {
	cmd.Execute()
}
