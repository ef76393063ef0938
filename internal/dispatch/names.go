package dispatch

import "strconv"

// countries used for synthetic participant metadata, cycled by id.
var countries = []CountryMeta{
	{Name: "United States", Code: "us", Flag: "flags/us.svg"},
	{Name: "Germany", Code: "de", Flag: "flags/de.svg"},
	{Name: "Japan", Code: "jp", Flag: "flags/jp.svg"},
	{Name: "Brazil", Code: "br", Flag: "flags/br.svg"},
	{Name: "India", Code: "in", Flag: "flags/in.svg"},
	{Name: "France", Code: "fr", Flag: "flags/fr.svg"},
	{Name: "Canada", Code: "ca", Flag: "flags/ca.svg"},
	{Name: "Australia", Code: "au", Flag: "flags/au.svg"},
	{Name: "South Korea", Code: "kr", Flag: "flags/kr.svg"},
	{Name: "Netherlands", Code: "nl", Flag: "flags/nl.svg"},
}

// SynthesizeParticipants appends count synthetic bots to the list, numbering
// them from the running max id so names never collide with caller-supplied
// participants.
func SynthesizeParticipants(existing []Participant, count int) []Participant {
	maxID := 0
	for _, p := range existing {
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	out := make([]Participant, 0, len(existing)+count)
	out = append(out, existing...)
	for i := 1; i <= count; i++ {
		id := maxID + i
		country := countries[id%len(countries)]
		out = append(out, Participant{
			ID:          id,
			DisplayName: botName(id),
			Status:      StatusReady,
			Country:     &country,
		})
	}
	return out
}

func botName(id int) string {
	return "Bot " + strconv.Itoa(id)
}
