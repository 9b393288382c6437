package classifier

import (
	"fmt"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

// ExampleClassify shows the percentage fallback for text-only notifications.
func ExampleClassify() {
	res, ok := Classify(event.Envelope{
		ID:        "0|com.example.sync|7",
		PackageID: "com.example.sync",
		Title:     "Syncing photos",
		Text:      "45% downloaded",
	}, DefaultClockPackage)
	fmt.Println(ok, res.Kind, res.Percent)
	// Output:
	// true percentage 45
}
