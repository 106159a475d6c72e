// The main package for the jobinsights executable.
package main

import "github.com/JakeFAU/topcv-job-insights/cmd"

func main() {
	cmd.Execute()
}
