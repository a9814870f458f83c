package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"courierdesk/store"
)

var (
	at      = time.Date(2026, 3, 9, 14, 5, 0, 0, time.UTC)
	created = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
)

func sample() *store.Booking {
	return &store.Booking{
		ID:              "bk-1",
		UserID:          "u-1",
		Status:          "pending",
		Collection:      store.Address{Name: "Acme", AddressLine: "1 Broad St", Street: "Broad St", City: "Birmingham", County: "West Midlands", Building: "Unit 4", Postcode: "B1 1AA"},
		Delivery:        store.Address{Name: `The "Zenith" Co`, AddressLine: "1 Piccadilly", City: "Manchester", Postcode: "M1 1AE"},
		CollectionAt:    at,
		Urgent:          true,
		VehicleType:     "van",
		BasePrice:       120,
		VAT:             24,
		TotalPrice:      144,
		ContactEmail:    "a@example.com",
		ContactPhone:    "0121 496 0000",
		AdditionalInfo:  "gate code 1234",
		ModifiableUntil: created.Add(30 * time.Minute),
		CreatedAt:       created,
		UpdatedAt:       created.Add(5*time.Minute + 7*time.Second),
	}
}

func TestFromBookingFormats(t *testing.T) {
	r := FromBooking(sample())
	checks := map[string]string{
		"date":            "09/03/2026",
		"deliveryTime":    "2:05 PM",
		"isUrgent":        "Yes",
		"basePrice":       "120.00",
		"vat":             "24.00",
		"totalPrice":      "144.00",
		"modifiableUntil": "01/03/2026, 08:30:00",
		"timestamp":       "01/03/2026, 08:05:07",
		"deliveryAddress": "1 Piccadilly",
	}
	for k, want := range checks {
		if got := r.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestKeysOrder(t *testing.T) {
	want := "bookingId,collectionName,collectionAddress,collectionStreet,collectionCity,collectionCounty,collectionBuilding,collectionPostcode," +
		"deliveryName,deliveryAddress,deliveryStreet,deliveryCity,deliveryCounty,deliveryBuilding,deliveryPostcode," +
		"date,deliveryTime,isUrgent,vehicleType,basePrice,vat,totalPrice,userId,status,modifiableUntil," +
		"contactEmail,contactPhone,additionalInfo,timestamp"
	r := FromBooking(sample())
	if got := strings.Join(r.Keys(), ","); got != want {
		t.Errorf("keys =\n%s\nwant\n%s", got, want)
	}

	// encoding/json follows the same order
	data, _ := json.Marshal(r)
	if !bytes.HasPrefix(data, []byte(`{"bookingId":"bk-1","collectionName":"Acme"`)) {
		t.Errorf("json = %s", data)
	}
	if bytes.Contains(data, []byte("outsourcedTo")) {
		t.Error("unset side keys present in json")
	}
}

func TestSideKeysWhenSet(t *testing.T) {
	b := sample()
	b.Status = "declined"
	d := at.Add(time.Hour)
	b.DeclineReason = "no capacity"
	b.DeclinedAt = &d
	r := FromBooking(b)
	keys := r.Keys()
	if len(keys) != 31 || keys[29] != "declineReason" || keys[30] != "declinedAt" {
		t.Errorf("keys = %v", keys[28:])
	}
	if r.DeclinedAt != "2026-03-09T15:05:00Z" {
		t.Errorf("declinedAt = %q", r.DeclinedAt)
	}
}

func TestRecordBookingRecordIdentity(t *testing.T) {
	b := sample()
	o := at.Add(2 * time.Hour)
	b.Status = "outsourced"
	b.OutsourcedTo = "Fast Couriers"
	b.OutsourcedNotes = "tail lift"
	b.OutsourcedAt = &o

	r := FromBooking(b)
	back, err := r.ToBooking()
	if err != nil {
		t.Fatalf("ToBooking: %v", err)
	}
	if again := FromBooking(back); again != r {
		t.Errorf("record changed:\n%+v\n%+v", r, again)
	}
	if !back.CollectionAt.Equal(at) || !back.Urgent || back.TotalPrice != 144 {
		t.Errorf("parsed booking = %+v", back)
	}
}

func TestToBookingRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"isUrgent":        "maybe",
		"basePrice":       "12,50",
		"date":            "2026-03-09",
		"timestamp":       "yesterday",
		"modifiableUntil": "",
	}
	for key, val := range cases {
		r := FromBooking(sample())
		r.Set(key, val)
		if _, err := r.ToBooking(); err == nil {
			t.Errorf("%s=%q accepted", key, val)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil || buf.Len() != 0 {
		t.Fatalf("empty input wrote %q, %v", buf.String(), err)
	}

	a := FromBooking(sample())
	b2 := sample()
	b2.ID = "bk-2"
	b2.Urgent = false
	b := FromBooking(b2)
	if err := WriteCSV(&buf, []Record{a, b}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out := buf.String()
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2", len(lines))
	}
	if strings.HasSuffix(out, "\n") {
		t.Error("trailing newline")
	}
	if !strings.HasPrefix(lines[0], `"bookingId","collectionName",`) {
		t.Errorf("header = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"The ""Zenith"" Co"`) {
		t.Errorf("embedded quotes not doubled: %s", lines[1])
	}
	if !strings.HasPrefix(lines[2], `"bk-2",`) || !strings.Contains(lines[2], `"No"`) {
		t.Errorf("row 2 = %s", lines[2])
	}
}

func TestReadCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	recs := []Record{FromBooking(sample())}
	WriteCSV(&buf, recs)

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(got) != 1 || got[0] != recs[0] {
		t.Errorf("read back %+v", got)
	}

	if _, err := ReadCSV(strings.NewReader(`"bookingId","password"` + "\n" + `"x","y"`)); err == nil {
		t.Error("unknown column accepted")
	}
	if got, err := ReadCSV(strings.NewReader("")); err != nil || len(got) != 0 {
		t.Errorf("empty input = %v, %v", got, err)
	}
}
