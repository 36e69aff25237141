// Package daybreak provides a client for a daybreak server over TCP.
//
// Example:
//
//	client, err := daybreak.Connect()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Set("foo", "bar")
//	val, err := client.Get("foo")
package daybreak
