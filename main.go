package main

import "github.com/cloverpay/payment-core/cmd"

func main() {
	cmd.Execute()
}
