/*
Package converge joins the local RabbitMQ node to the cluster formed by the
other head nodes and keeps the cluster-wide HA policy in place.

# Cycle

Controller.Run performs one cycle:

 1. InitCredentials stores the broker user, password and Erlang cookie the
    first time they are needed.
 2. EnablePlugins enables every configured plugin not yet enabled.
 3. The registry supplies the ordered head node list.
 4. ConvergeCluster visits every head node except this one, in order.
 5. ResetPassword and ApplyHAPolicy both run. Their errors are joined.

A failure in steps 1 to 4 ends the cycle. The returned Report always holds
what was done up to that point.

# Joining a peer

Before each peer the controller reads cluster_status afresh. A peer whose
rabbit@<host> node is already listed is skipped. Otherwise the node runs
stop_app, reset, join_cluster rabbit@<host> and start_app. The first
failing command stops the sequence and the cycle with a JoinError naming the
peer and the step. Once stop_app has been issued, cancelling the context no
longer interrupts the sequence; only the command timeout of the runner does.

Running the cycle again on a converged cluster issues only the plugin list
checks, one cluster_status per peer, change_password and set_policy.

# Policy

The HA policy matches every queue and exchange except amq.* and 32-hex
names and mirrors to all nodes. Its minimum quorum, floor(n/2)+1, is
reported in logs, metrics and events but is not part of the definition.
*/
package converge
