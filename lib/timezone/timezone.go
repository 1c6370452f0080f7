package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		panic(err)
	}
}

// force timezone to Amsterdam because the portal renders all lesson
// times in Dutch local time, while the host running the scraper may
// be anywhere. all Year()/Month()/Day()/Hour() math has to agree with
// what the browser shows.
func Now() time.Time {
	return time.Now().In(Location)
}
