package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/adamwoolhether/netlayer/client"
	"github.com/adamwoolhether/netlayer/internal/fixture"
)

func ExampleBuild() {
	c, err := client.Build(
		client.WithTimeout(10*time.Second),
		client.WithUserAgent("example/1.0"),
		client.WithKeepAlive(15*time.Second),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer c.Close()

	fmt.Println("client built")
	// Output: client built
}

func ExampleURL() {
	u := client.URL("https", "example.com", "/api/v1",
		client.WithPort(8443),
		client.WithQueryStrings(map[string]string{"key": "value"}),
	)

	fmt.Println(u.String())
	// Output: https://example.com:8443/api/v1?key=value
}

func ExampleAdapt() {
	d := client.Descriptor{
		Kind:     client.KindPlain,
		Method:   http.MethodPost,
		Endpoint: "/users",
		Body:     map[string]string{"name": "alice"},
	}

	treq, err := client.Adapt(context.Background(), d, client.URL("https", "example.com", "/"))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(treq.HTTP.Method, treq.HTTP.URL, treq.HTTP.Header.Get("Content-Type"), treq.ExpectStatus)
	// Output: POST https://example.com/users application/json 200
}

func ExampleClient_Send() {
	srv := httptest.NewServer(fixture.New(fixture.WithLogger(discard)))
	defer srv.Close()

	c, err := client.Build(client.WithBaseURL(srv.URL), client.WithLogger(discard))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer c.Close()

	done := make(chan struct{})
	_, err = c.Send(context.Background(), client.Descriptor{Kind: client.KindPlain, Endpoint: "/status/404"},
		func(resp *client.Response, err error) {
			defer close(done)
			fmt.Println(err)
		})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	<-done

	// Output: unexpected status code: 404, body: status 404
}

func ExampleDecode() {
	type user struct {
		Name string `json:"name"`
	}

	u, err := client.Decode[user]([]byte(`{"name":"alice"}`), nil)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(u.Name)

	_, err = client.Decode[user]([]byte(`not json`), nil)
	fmt.Println(err != nil)
	// Output:
	// alice
	// true
}
