package main

import "feedbacktriage/internal/app"

func main() {
	app.Main()
}
