/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/furniro/apiserver/cmd"

func main() {
	cmd.Execute()
}
